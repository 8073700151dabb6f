package main

import "strings"

// PromptSet is the template set for one deliberation. Templates use literal
// {name} substitution points so user-supplied templates survive round-trips
// through settings storage: {user_query}, {search_context_block},
// {responses_text}, {stage1_text}, {stage2_text}.
type PromptSet struct {
	Stage1 string
	Stage2 string
	Stage3 string
}

// Stage1PromptDefault passes the question straight through, optionally
// preceded by web search context.
const Stage1PromptDefault = `{search_context_block}{user_query}`

// SearchContextTemplate frames search results handed to any stage.
const SearchContextTemplate = `Context from Web Search:
{search_context}

`

// Stage2PromptDefault asks a ranker to critique the anonymized answers and
// finish with a strictly formatted ranking section.
const Stage2PromptDefault = `You are evaluating different responses to the following question:

Question: {user_query}

{search_context_block}Here are the responses from different models (anonymized):

{responses_text}

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`

// Stage3PromptDefault gives the chairman everything: answers, rankings, and
// any search context.
const Stage3PromptDefault = `You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: {user_query}

{search_context_block}STAGE 1 - Individual Responses:
{stage1_text}

STAGE 2 - Peer Rankings:
{stage2_text}

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`

// DefaultPrompts returns the built-in template set.
func DefaultPrompts() PromptSet {
	return PromptSet{
		Stage1: Stage1PromptDefault,
		Stage2: Stage2PromptDefault,
		Stage3: Stage3PromptDefault,
	}
}

// renderPrompt substitutes {name} placeholders. Unknown placeholders are
// left intact so a malformed custom template still produces usable text.
func renderPrompt(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// buildSearchContextBlock wraps raw search context for prompt inclusion, or
// returns "" when there is none.
func buildSearchContextBlock(searchContext string) string {
	if strings.TrimSpace(searchContext) == "" {
		return ""
	}
	return renderPrompt(SearchContextTemplate, map[string]string{
		"search_context": searchContext,
	})
}
