// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package render produces the final project charter document from a
// completed session.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

const charterTemplate = `# AI Project Charter

Session {{.Session.ID}}{{if .Session.Owner}} — proposed by {{.Session.Owner}}{{end}}

## Governance Decision

**{{.Decision.Decision}}**

{{.Decision.Rationale}}
{{- if .Decision.Residuals}}

| Principle | Severity | Likelihood | Residual | Level |
|---|---|---|---|---|
{{- range .Decision.Residuals}}
| {{.Principle}} | {{.Severity}} | {{.Likelihood}} | {{printf "%.2f" .ResidualScore}} | {{.ResidualLevel}} |
{{- end}}
{{- end}}

## 1. Problem Definition

{{with .Problem}}{{.Statement}}

- Task archetype: {{.TaskArchetype}}
- Inputs: {{joinFields .Inputs}}
- Outputs: {{joinFields .Outputs}}
- Stakeholders: {{join .Stakeholders}}
- Impact: {{.Impact}}{{if .AutomatedDecision}} (automated decisions){{end}}
{{else}}_Not recorded._
{{end}}
## 2. Success Metrics

{{with .Metrics}}{{range .Metrics}}- **{{.Name}}**{{if .Target}} (target {{.Target}}){{end}}: {{.Alignment}}
{{end}}{{if .Guardrails}}Guardrails:
{{range .Guardrails}}- {{.Name}}{{if .Target}} (target {{.Target}}){{end}}{{if .Alignment}}: {{.Alignment}}{{end}}
{{end}}{{end}}{{else}}_Not recorded._
{{end}}
## 3. Data Feasibility

{{with .Scorecard}}{{range .Sources}}- **{{.Name}}** ({{.AccessLevel}} access){{if .Features}}: {{join .Features}}{{end}}
{{end}}
| Dimension | Score |
|---|---|
{{- range $dim := qualityDimensions}}
| {{$dim}} | {{index $.Scorecard.Dimensions $dim}} |
{{- end}}
{{if .Notes}}
{{.Notes}}
{{end}}{{else}}_Not recorded._
{{end}}
## 4. User Context

{{with .Users}}{{range .Personas}}- **{{.Name}}** ({{.AccessLevel}} access){{if .Needs}}: {{.Needs}}{{end}}
{{end}}{{if .UsagePattern}}
{{.UsagePattern}}
{{end}}{{else}}_Not recorded._
{{end}}
## 5. Ethics and Governance

{{with .Risks}}{{range .Entries}}- **{{.Principle}}** ({{.ResidualLevel}}, residual {{printf "%.2f" .ResidualScore}}): {{.Description}}
{{- range .Mitigations}}
  - mitigation: {{.Strategy}}{{if .Effectiveness}} ({{printf "%.0f" (pct .Effectiveness)}}% effective){{end}}
{{- end}}
{{end}}{{if .ReviewNotes}}
{{.ReviewNotes}}
{{end}}{{else}}_Not recorded._
{{end}}
{{- if .Consistency}}
## Consistency Review

{{if .Consistency.IsConsistent}}No contradictions found across stages.{{else}}Contradictions:
{{range .Consistency.Contradictions}}- {{.}}
{{end}}{{end}}
{{- if .Consistency.ManualReviewFlags}}
Manual review:
{{range .Consistency.ManualReviewFlags}}- {{.}}
{{end}}
{{- end}}
{{- end}}
{{- if .Escalations}}
## Escalated Questions

The following questions never reached an acceptable answer; the best
attempt was kept and should be revisited:
{{range .Escalations}}- {{.}}
{{end}}
{{- end}}`

var tmpl = template.Must(template.New("charter").Funcs(template.FuncMap{
	"join":              func(items []string) string { return strings.Join(items, ", ") },
	"joinFields":        joinFields,
	"qualityDimensions": func() []string { return datatypes.QualityDimensions },
	"pct":               func(f float64) float64 { return f * 100 },
}).Parse(charterTemplate))

func joinFields(fields []datatypes.IOField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Kind != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", f.Name, f.Kind))
		} else {
			parts = append(parts, f.Name)
		}
	}
	return strings.Join(parts, ", ")
}

type charterData struct {
	Session     *datatypes.Session
	Decision    *datatypes.GovernanceDecisionRecord
	Consistency *datatypes.ConsistencyReport
	Problem     *datatypes.ProblemStatement
	Metrics     *datatypes.MetricAlignment
	Scorecard   *datatypes.DataQualityScorecard
	Users       *datatypes.UserContext
	Risks       *datatypes.EthicalRiskReport
	Escalations []string
}

// Charter renders the markdown project charter for a completed session.
//
// Inputs:
//
//	session - A session with Status completed and a governance decision.
//
// Outputs:
//
//	string - The charter document.
//	error - Non-nil if the session is not completed or lacks a decision.
func Charter(session *datatypes.Session) (string, error) {
	if session == nil {
		return "", fmt.Errorf("session must not be nil")
	}
	if session.Status != datatypes.StatusCompleted {
		return "", fmt.Errorf("session %s is %s, not completed", session.ID, session.Status)
	}
	if session.Decision == nil {
		return "", fmt.Errorf("session %s has no governance decision", session.ID)
	}

	data := charterData{
		Session:     session,
		Decision:    session.Decision,
		Consistency: session.Consistency,
	}
	if d := session.Deliverable(1); d != nil {
		data.Problem = d.Problem
	}
	if d := session.Deliverable(2); d != nil {
		data.Metrics = d.Metrics
	}
	if d := session.Deliverable(3); d != nil {
		data.Scorecard = d.Scorecard
	}
	if d := session.Deliverable(4); d != nil {
		data.Users = d.Users
	}
	for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
		if d := session.Deliverable(stage); d != nil {
			for _, q := range d.Escalations {
				data.Escalations = append(data.Escalations, fmt.Sprintf("stage %d: %s", stage, q))
			}
		}
	}
	if d := session.Deliverable(5); d != nil {
		data.Risks = d.Risks
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render charter: %w", err)
	}
	return buf.String(), nil
}
