package baselines

// Prompts used by the prompt reviser. They are text/template sources
// rendered by prompt.RenderRevision* helpers.

// AnalysisSystemPrompt frames the error analysis call.
var AnalysisSystemPrompt = "You are an expert in analyzing machine learning errors and improving prompts."

// RevisionSystemPrompt frames the rewrite call.
var RevisionSystemPrompt = "You are an expert prompt engineer focused on improving classification accuracy."

// HybridSystemPrompt frames the hybrid rewrite call.
var HybridSystemPrompt = "You are an expert in prompt engineering. Generate only the improved prompt without explanations."

// ErrorAnalysisPrompt asks for a diagnosis of a prompt's misclassifications.
var ErrorAnalysisPrompt = `Analyze the following incorrect predictions and identify error patterns:

Original Prompt Used:
{{.Prompt}}

Accuracy Achieved: {{percent .Accuracy}}
Valid labels: {{.Labels}}

Confusion matrix (rows are true labels, columns are predicted labels):
{{.Confusion}}
Sample of Incorrect Predictions (showing up to {{.MaxSamples}}):
{{range .Errors}}- Text: {{printf "%q" .Text}}
  True label: {{.TrueLabel}} | Predicted: {{or .Predicted "unlabeled"}} | Raw output: {{printf "%q" .Raw}}
{{else}}(none)
{{end}}
Please analyze:
1. What are the common patterns in the errors?
2. What types of cases is the model getting wrong?
3. What might be causing these misclassifications?
4. Are there specific features or characteristics that lead to errors?

Provide a concise analysis focusing on actionable insights.`

// RevisionPrompt asks for a rewritten prompt given a diagnosis.
var RevisionPrompt = `Based on the error analysis below, improve the original prompt to reduce these errors:

Original Prompt:
{{.Prompt}}

Current Accuracy: {{percent .Accuracy}}

Error Analysis:
{{.Analysis}}

Please provide an improved version of the prompt that:
1. Addresses the identified error patterns
2. Provides clearer instructions to reduce misclassifications
3. Uses exactly these labels and no others: {{.Labels}}. Do not rename, merge or add classes.
4. Is more specific about edge cases or ambiguous situations
5. Ensures the model outputs ONLY the label without any additional text or explanations
6. May include 2-3 short examples of correct classifications, drawn from the error cases above, each showing only the label as output
7. Is concise: remove redundant or verbose instructions

Do not include any placeholder in braces; the input text will be appended after your prompt.
Return ONLY the improved prompt text, without any explanation or additional commentary.`

// HybridRevisionPrompt improves the best prompt using feedback from both the
// best prompt and a worse attempt.
var HybridRevisionPrompt = `You need to improve a prompt for classification. Here's the context:

BEST PROMPT (Accuracy: {{percent .BestAccuracy}}):
{{.BestPrompt}}

ATTEMPTED PROMPT (Accuracy: {{percent .CurrentAccuracy}}):
{{.CurrentPrompt}}

The attempted prompt performed worse than the best prompt. Here's the combined error analysis:

{{.Feedback}}

Key insights:
1. The best prompt still has persistent errors that need addressing
2. The attempted prompt introduced new errors while trying to fix existing ones
3. We need to maintain what works in the best prompt while carefully addressing its weaknesses

Based on this analysis, improve the BEST prompt to:
1. Address the persistent error patterns without breaking what already works
2. Avoid the mistakes that made the attempted prompt perform worse
3. Be more precise in distinguishing between commonly confused labels
4. Keep exactly these labels and no others: {{.Labels}}, and output only the bare label

Do not include any placeholder in braces; the input text will be appended after your prompt.
Return only the improved prompt text.`
