package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/webprobe/pkg/plan"
)

// PlanSystemPrompt instructs the model to produce a TestPlan.
const PlanSystemPrompt = `You are a senior QA engineer planning end-to-end browser tests for a single web page.

Study the page content you are given and decide what kind of website it is and which
functionality matters most to its users. Then design concrete, executable test cases that
exercise that functionality through the page's own controls.

Rules for test cases:
- Each case performs exactly one interaction: click, fill, select, check, hover, press a key,
  scroll, navigate to a URL or path, or verify that something is visible.
- Quote literal values, for example: Type "running shoes" into the search box.
- elementSelector must be a CSS selector that exists in the provided HTML. Prefer ids,
  names, data-testid and aria attributes over positional selectors.
- riskLevel is "high" for flows that lose users or money when broken, "medium" for core
  navigation and content, and "low" for cosmetic features.
- Order cases from highest to lowest risk. Between 5 and 15 cases.

Respond with a single JSON object and nothing else:
{
  "websiteType": "string",
  "criticalFunctionalities": ["string"],
  "testCases": [
    {
      "name": "string",
      "action": "string",
      "expectedBehavior": "string",
      "riskLevel": "low | medium | high",
      "elementSelector": "string"
    }
  ],
  "potentialIssues": ["string"]
}`

// ReportSystemPrompt instructs the model to produce a TestReport.
const ReportSystemPrompt = `You are a senior QA engineer writing the bug report for an automated browser test run.

You receive every executed test case with its status. PASSED cases worked. FAILED cases
surfaced a runtime error, crash banner, error page, timeout or action error; the error field
is the evidence. SKIPPED cases were not executed because the page was already broken or the
run was interrupted; never report a SKIPPED case as a bug in the feature it targets, but do
report the broken page itself.

Classify failures by user impact. Failures in high-risk cases are critical bugs unless the
evidence shows a test problem such as a wrong selector. Be specific and cite the test name.

overallHealth is one of "healthy", "minor-issues", "major-issues", "critical".
severity is one of "low", "medium", "high".

Respond with a single JSON object and nothing else:
{
  "overallHealth": "string",
  "criticalBugs": [{"title": "string", "description": "string", "severity": "string", "testName": "string"}],
  "minorIssues": [{"title": "string", "description": "string", "severity": "string", "testName": "string"}],
  "workingFeatures": ["string"],
  "recommendations": ["string"],
  "riskAssessment": "string"
}`

// BuildPlanPrompt renders the user message for plan synthesis. The snapshot
// must already be bounded.
func BuildPlanPrompt(snap plan.PageSnapshot) string {
	var builder strings.Builder

	builder.WriteString("<page>\n")
	fmt.Fprintf(&builder, "URL: %s\n", snap.URL)
	if snap.Title != "" {
		fmt.Fprintf(&builder, "Title: %s\n", snap.Title)
	}
	builder.WriteString("</page>\n\n")

	builder.WriteString("<visible_text>\n")
	builder.WriteString(snap.Text)
	builder.WriteString("\n</visible_text>\n\n")

	builder.WriteString("<html>\n")
	builder.WriteString(snap.HTML)
	builder.WriteString("\n</html>\n\n")

	builder.WriteString("Produce the test plan JSON for this page.")
	return builder.String()
}

// resultView is what the reporter sees of a result. Durations and artifact
// paths are left out.
type resultView struct {
	TestName       string         `json:"testName"`
	Action         string         `json:"action"`
	RiskLevel      plan.RiskLevel `json:"riskLevel"`
	Status         plan.Status    `json:"status"`
	Error          string         `json:"error,omitempty"`
	ActualBehavior string         `json:"actualBehavior"`
}

// BuildReportPrompt renders the user message for report compilation.
func BuildReportPrompt(results []plan.TestResult, potentialIssues []string) (string, error) {
	views := make([]resultView, 0, len(results))
	for _, r := range results {
		views = append(views, resultView{
			TestName:       r.TestName,
			Action:         r.Action,
			RiskLevel:      r.RiskLevel,
			Status:         r.Status,
			Error:          r.Error,
			ActualBehavior: r.ActualBehavior,
		})
	}
	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}

	var builder strings.Builder

	fmt.Fprintf(&builder, "<totals>\n%s\n</totals>\n\n", plan.Tally(results))

	builder.WriteString("<results>\n")
	builder.Write(data)
	builder.WriteString("\n</results>\n\n")

	if len(potentialIssues) > 0 {
		builder.WriteString("<suspected_issues>\n")
		for _, issue := range potentialIssues {
			builder.WriteString("- ")
			builder.WriteString(issue)
			builder.WriteString("\n")
		}
		builder.WriteString("</suspected_issues>\n\n")
	}

	builder.WriteString("Produce the bug report JSON for this run.")
	return builder.String(), nil
}
