package selfrag

import "fmt"

const draftTemplate = `You are Lumina's documentation expert for SafeLine WAF.
Answer the question using ONLY the evidence blocks below.
Cite every claim with the bracketed index of the block it comes from, e.g. [0].
If the evidence does not answer the question, say so.

Question:
%s

Evidence:
%s

Answer:`

const critiqueTemplate = `You are reviewing a draft answer for groundedness.
Reply with exactly one line: TOKEN: reason
TOKEN is one of FINAL, RETRY, CLARIFY, ESCALATE.
FINAL    - every claim is supported by the cited evidence
RETRY    - more or different evidence is needed
CLARIFY  - the question is ambiguous; reason is the question to ask the user
ESCALATE - the evidence contradicts itself or cannot support an answer

Question:
%s

Evidence:
%s

Draft:
%s`

func draftPrompt(query, evidence string) string {
	return fmt.Sprintf(draftTemplate, query, evidence)
}

func critiquePrompt(query, evidence, draft string) string {
	return fmt.Sprintf(critiqueTemplate, query, evidence, draft)
}
