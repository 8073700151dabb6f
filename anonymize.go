package main

import "fmt"

// AnonymizationMap is the bijection between anonymous labels ("Response A",
// "Response B", ...) and the models whose Stage 1 answers they stand for.
// It exists only for the lifetime of one deliberation and is never
// persisted.
type AnonymizationMap struct {
	labels  []string
	toModel map[string]string
}

// AssignLabels labels the given Stage 1 successes in the exact order they
// are passed (council member order, filtered to successes): the first gets
// "Response A", the second "Response B", and so on. Errored members are
// never assigned a label.
func AssignLabels(successes []StageResult) *AnonymizationMap {
	m := &AnonymizationMap{
		labels:  make([]string, 0, len(successes)),
		toModel: make(map[string]string, len(successes)),
	}
	for i, result := range successes {
		label := fmt.Sprintf("Response %c", rune('A'+i))
		m.labels = append(m.labels, label)
		m.toModel[label] = result.Model
	}
	return m
}

// ReverseLabel returns the model a label stands for, or "" for an unknown
// label.
func (m *AnonymizationMap) ReverseLabel(label string) string {
	return m.toModel[label]
}

// Labels returns the labels in assignment order.
func (m *AnonymizationMap) Labels() []string {
	out := make([]string, len(m.labels))
	copy(out, m.labels)
	return out
}

// Len returns the number of labeled models.
func (m *AnonymizationMap) Len() int {
	return len(m.labels)
}

// LabelToModel returns a copy of the mapping for consumers (event metadata,
// display-layer reversal).
func (m *AnonymizationMap) LabelToModel() map[string]string {
	out := make(map[string]string, len(m.toModel))
	for label, model := range m.toModel {
		out[label] = model
	}
	return out
}
