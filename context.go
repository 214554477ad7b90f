package papyrus

import (
	"fmt"
	"strings"
)

// Refusal is the fixed user-visible sentence for questions the retrieved
// context cannot answer. The prompt instructs the model to respond with
// exactly this text; it is never surfaced as an error.
const Refusal = "I could not find an answer in the provided documents or conversation history."

// DefaultHistoryWindow is the number of most recent chat turns kept when
// serializing conversation history. Older turns are silently dropped.
const DefaultHistoryWindow = 20

const answerPrompt = `<prompt>
    <role>
        You are a world-class AI research assistant. Your task is to provide precise, factual answers based ONLY on the provided <retrieved_context> and the ongoing <chat_history>.

        **Important:** The <retrieved_context> may contain larger parent excerpts (full paragraphs) provided because a smaller, more specific passage within them was identified as highly relevant to the <user_question>. Leverage the full context of the parent excerpts but focus on directly addressing the user's specific query.
    </role>

    <retrieved_context>
    ---
    %s
    ---
    </retrieved_context>

    <user_question>
    %s
    </user_question>

    <chat_history>
    ---
    %s
    ---
    </chat_history>

    <instructions>
        <analysis_steps>
            1. Read the current <user_question> and consider whether it follows up on the <chat_history>.
            2. Identify the information in <retrieved_context> that most directly relates to the question.
            3. Synthesize the relevant information from the context and the history into a draft answer.
            4. Verify that every statement is supported by <retrieved_context> or clearly established facts from <chat_history>.
        </analysis_steps>

        <formatting_rules>
            1. Use proper Markdown formatting for clarity (bold, italics, lists, headers, blockquotes).
            2. Structure the answer with paragraphs and proper spacing.
            3. DO NOT include any XML tags in your output.
            4. DO NOT include chunk references like [Chunk 1], [Parent 2] in your response.
        </formatting_rules>

        <response_rules>
            1. Answer using ONLY information explicitly found in <retrieved_context> or clearly stated in <chat_history>.
            2. If the answer cannot be found in the provided information, respond ONLY with: "%s"
            3. Be detailed and comprehensive, drawing from the full parent context where relevant.
            4. Provide a natural, conversational response without tags or metadata.
        </response_rules>
    </instructions>

    <output_format>
        Provide your answer directly in clean Markdown without XML tags, thinking process, or metadata.
    </output_format>
</prompt>`

const hydePrompt = `Write a short paragraph that provides a direct and factual answer to the following question. Assume this answer is derived from a relevant document. Do not include any introductory phrases like "Based on the document..." or mention that this is a hypothetical answer.

Question: %s`

const summaryPrompt = `Write a dense, factual summary of the following document. Cover the main topics, key findings, and important details in a few paragraphs. Do not add commentary or introductory phrases.

Document:
%s`

// AnswerPrompt interpolates the assembled context, the question, and the
// serialized chat history into the fixed instruction template.
func AnswerPrompt(context, question, historyText string) string {
	return fmt.Sprintf(answerPrompt, context, question, historyText, Refusal)
}

// HyDEPrompt asks the model for a hypothetical answer paragraph whose
// embedding stands in for the raw question during retrieval.
func HyDEPrompt(question string) string {
	return fmt.Sprintf(hydePrompt, question)
}

// SummaryPrompt is the dedicated summarization instruction used at ingestion
// time.
func SummaryPrompt(text string) string {
	return fmt.Sprintf(summaryPrompt, text)
}

// SummaryContext builds the grounding text for the summary-routed path.
func SummaryContext(summaryText string) string {
	return "[Document Summary]:\n" + summaryText
}

// ChunkContext builds the grounding text for the parent-child path: labeled
// child excerpts for precision, then a separator, then labeled unique parent
// excerpts for surrounding detail.
func ChunkContext(children []ScoredChild, parents []ParentChunk) string {
	var childPart strings.Builder
	for i, c := range children {
		if i > 0 {
			childPart.WriteString("\n\n")
		}
		fmt.Fprintf(&childPart, "[Chunk %d]: %s", i+1, c.Content)
	}

	var parentPart strings.Builder
	for i, p := range parents {
		if i > 0 {
			parentPart.WriteString("\n\n")
		}
		fmt.Fprintf(&parentPart, "[Parent %d]: %s", i+1, p.Content)
	}

	return childPart.String() + "\n\n--- BROADER CONTEXT ---\n\n" + parentPart.String()
}

// UniqueParentIDs returns the distinct parent ids referenced by children,
// in first-seen order. A parent referenced by multiple children counts once.
func UniqueParentIDs(children []ScoredChild) []string {
	seen := make(map[string]bool, len(children))
	var ids []string
	for _, c := range children {
		if c.ParentChunkID == "" || seen[c.ParentChunkID] {
			continue
		}
		seen[c.ParentChunkID] = true
		ids = append(ids, c.ParentChunkID)
	}
	return ids
}

// FormatHistory serializes chat history as alternating "User:"/"Assistant:"
// lines, truncated to the window most recent turns. Empty history renders as
// an explicit marker so the prompt template never contains an ambiguous blank.
func FormatHistory(turns []ChatTurn, window int) string {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	if len(turns) == 0 {
		return "No previous conversation"
	}
	lines := make([]string, len(turns))
	for i, t := range turns {
		speaker := "Assistant"
		if t.Role == "user" {
			speaker = "User"
		}
		lines[i] = speaker + ": " + t.Content
	}
	return strings.Join(lines, "\n")
}
