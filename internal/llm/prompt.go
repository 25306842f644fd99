package llm

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/clauseguard/constants"
)

const riskPolicy = "Use exactly one of Low, Medium or High for every risk. " +
	"Be conservative: a standard or fair clause is Low; a clause that is ambiguous or has potential pitfalls is Medium; " +
	"a clause that is clearly one-sided or dangerous (termination without cause, unlimited liability) is High."

const outputContract = "Return ONLY JSON that matches the provided schema. " +
	"'riskLevel' is the overall verdict. 'summary' is a plain-language explanation of 2-3 sentences. " +
	"Every entry in 'clauses' has 'text' (the exact sentence from the document), 'risk' and 'explanation' (why that sentence matters). " +
	"If riskLevel is Medium or High, cite at least one clause that supports it. Never output null."

// BuildSystemPrompt composes the system message for a document type, language policy and repair mode.
func BuildSystemPrompt(docType constants.DocumentType, repair Repair, outputLanguage string) string {
	parts := []string{}
	switch docType {
	case constants.DocumentInvoice:
		parts = append(parts, invoiceInstructions()...)
	default:
		parts = append(parts, contractInstructions()...)
	}
	parts = append(parts, riskPolicy, outputContract)
	if repair.Suspected {
		parts = append(parts, repairInstructions(repair)...)
	}
	parts = append(parts, languagePolicy(repair, outputLanguage))
	return strings.Join(parts, " ")
}

func contractInstructions() []string {
	return []string{
		"You are an expert contract analyst who explains legal clauses to non-lawyers.",
		"Analyze the contract text and identify risks, especially clauses bearing on termination, liability, payment terms and intellectual-property rights.",
		"Flag each such clause on the three-level risk scale.",
	}
}

func invoiceInstructions() []string {
	return []string{
		"You are an invoice auditor.",
		"Extract the vendor, invoice date, invoice number, total and tax, and report them in the summary.",
		"Recompute the sum of all line items and compare it with the stated total.",
		"If the computed sum disagrees with the stated total, add a High risk clause quoting the total line whose explanation states both amounts and the mismatch.",
		"If a legally required field such as the vendor tax identifier, invoice number or invoice date is missing, add a High risk clause explaining which field is missing.",
		"An invoice whose arithmetic checks out and which carries all required fields is Low risk.",
	}
}

func repairInstructions(r Repair) []string {
	script := r.Script
	if script == "" {
		script = "a non-Latin script such as Greek or Cyrillic"
	}
	out := []string{
		fmt.Sprintf("The document text appears to be mis-decoded: it was most likely written in %s and its bytes were decoded with the wrong character encoding, producing Latin-looking characters.", script),
		"Treat the text as a noisy substitution cipher: reconstruct the intended script before analysing it, using the consistent character-to-character mapping.",
	}
	if r.Assumed != "" {
		out = append(out, "Suspected mix-up: "+r.Assumed+".")
	}
	if r.HighConfidence() && r.Preview != "" {
		out = append(out, "A local re-decoding of the opening reads: \""+r.Preview+"\".")
	}
	out = append(out,
		"When quoting a clause in 'text', prefer the repaired script only when you are highly confident in the reconstruction; otherwise quote the garbled fragment verbatim so a human can cross-check it.",
	)
	return out
}

func languagePolicy(r Repair, outputLanguage string) string {
	if r.Suspected {
		lang := strings.TrimSpace(outputLanguage)
		if lang == "" {
			lang = "English"
		}
		return fmt.Sprintf("Write 'summary' and every 'explanation' in %s. Quoted clause text may stay in the repaired or garbled source language.", lang)
	}
	return "If the document is not in English, write the whole response (summary and explanations) in the same language as the document. Do not translate it to English."
}

// BuildUserPrompt wraps the document text.
func BuildUserPrompt(docType constants.DocumentType, text string) string {
	var b strings.Builder
	switch docType {
	case constants.DocumentInvoice:
		b.WriteString("Invoice text to audit:\n")
	default:
		b.WriteString("Contract text to analyze:\n")
	}
	b.WriteString("\"\"\"\n")
	b.WriteString(text)
	b.WriteString("\n\"\"\"")
	return b.String()
}
