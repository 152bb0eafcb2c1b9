package agent

import (
	"fmt"
	"strings"
)

func classifyPrompt(question string) string {
	return fmt.Sprintf(`You are a financial data assistant that answers questions about SEC 10-K filings.

Classify the question as exactly one of:
- "generic": a greeting, thank you, send-off, or anything unrelated to the financial data in the 10-K filings.
- "direct": an explicit, factual question about a single company and a single year, with no comparison or inference.
- "indirect": comparisons, growth, percentages, ratios, margins, trends, "how did it change", "is it higher", or anything that needs several figures or a calculation.

Respond with ONLY a JSON object, no other text:
{"classification": "generic" | "direct" | "indirect", "reply": "..."}

For "generic", "reply" is a short polite message: greet or acknowledge greetings, otherwise say that the topic is outside your knowledge. For "direct" and "indirect", "reply" is "".

Question:
%s`, question)
}

func genericPrompt(question string) string {
	return fmt.Sprintf(`If the question is a greeting, thank you, send-off, or unrelated to the financial data in these 10-K filings, respond politely with a short message stating that it is out of your knowledge.
If it's a greeting, just greet or acknowledge appropriately.

Question: %s`, question)
}

func decomposePrompt(question string) string {
	return fmt.Sprintf(`You are a helpful assistant that generates sub-questions related to an input question about 10-K filings.

Goal:
- Break the input into the smallest possible independent sub-questions.
- If the question requires a derived metric (like operating margin, growth %%, ratios, or comparisons), expand it into sub-questions for the underlying quantities needed to compute it.
    * Example: "operating margin" -> ["What was revenue in YEAR?", "What was operating income in YEAR?"]
    * Example: "growth %%" -> ["What was revenue in YEAR1?", "What was revenue in YEAR2?"]

Rules:
- Output ONLY a valid JSON array of strings.
- Do NOT include explanations, numbering, or extra text.
- Each sub-question must be self-contained: name the company and the year explicitly.
- If the input is already atomic, return it unchanged as a single-element JSON array.

Input question:
%s`, question)
}

func answerPrompt(question, context string) string {
	return fmt.Sprintf(`You are a financial analyst assistant.
Use the following SEC 10-K filing passages to answer the question accurately.
Every fact you state must come from a passage; cite the section, company, page number and year from the passage header.
If the figure is not stated explicitly, you may derive it from the passages but you must say that it is derived, not quoted.

Question: %s

Context:
%s

Answer in a clear, concise paragraph.`, question, context)
}

func calculationPrompt(question string, subs []SubQuery) string {
	return fmt.Sprintf(`You are a financial analyst preparing a calculation.

Question: %s

Findings:
%s

If answering the question requires a derived figure (margin, growth %%, ratio, difference), respond with ONLY a JSON object:
{"expression": "...", "label": "..."}
The expression may contain only numbers, + - * / %% and parentheses. Put every figure in the same unit and drop currency symbols and thousands separators. For example, an operating margin from revenue of $10B and operating income of $2B is {"expression": "2/10", "label": "operating margin"}.
Several figures may be returned as a JSON array of such objects.
If no calculation is needed, respond with {"expression": "", "label": ""}.`, question, renderFindings(subs))
}

func finalPrompt(question string, subs []SubQuery, calcs []Calculation) string {
	var derived strings.Builder
	for _, c := range calcs {
		derived.WriteString("- ")
		derived.WriteString(c.describe())
		derived.WriteString("\n")
	}
	if derived.Len() == 0 {
		derived.WriteString("(none)\n")
	}

	return fmt.Sprintf(`You are a financial data assistant. Combine the findings below into the final answer to the question.

Question: %s

Findings:
%s

Derived figures:
%s
Respond with ONLY a JSON object, no other text:
{"answer": "...", "reasoning": "..."}
"answer" answers the question directly, using the derived figures when present. "reasoning" explains how the findings lead to the answer and states which figures were derived. Do not introduce figures that are not in the findings.`, question, renderFindings(subs), derived.String())
}

func renderFindings(subs []SubQuery) string {
	var sb strings.Builder
	for i, sq := range subs {
		if !sq.Resolved {
			continue
		}
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, sq.Question, sq.Answer)
	}
	return strings.TrimRight(sb.String(), "\n")
}
