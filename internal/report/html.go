package report

import (
	"fmt"
	"html/template"
	"io"
	"os"
)

// Severity banding for the HTML view: the share of affected subjects decides
// the block color.
const (
	colorRed    = "#ffcccc"
	colorYellow = "#fff2cc"
	colorGreen  = "#ccffcc"
)

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8" />
<title>Data Quality Check Report</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
h1 { color: #333; margin-bottom: 5px; }
h2 { color: #555; margin-top: 0; margin-bottom: 20px; font-weight: normal; }
.qc-block { border-radius: 5px; margin-bottom: 15px; padding: 15px; }
.description { font-style: italic; color: #555; margin-bottom: 10px; }
.header { font-weight: bold; font-size: 1.1em; margin-bottom: 5px; }
.error { color: #a00; }
</style>
</head>
<body>
<h1>Data Quality Check Report</h1>
<h2>Total Subjects: {{.TotalSubjects}} | Total Epsilon Used: {{printf "%.2f" .TotalEpsilonUsed}}</h2>
{{range .Blocks}}<div class="qc-block" style="background-color:{{.Color}};">
<div class="header">{{.Name}}</div>
{{if .Description}}<div class="description">{{.Description}}</div>{{end}}
{{if .Err}}<div class="error">Error: {{.Err}}</div>{{else}}<div>Count: {{.Count}} ({{printf "%.2f" .Percentage}}%)</div>
<div>Count with Differential Privacy: {{.CountDP}} ({{printf "%.2f" .PercentageDP}}%)</div>{{end}}
<div>Epsilon Used: {{.EpsilonUsed}}</div>
</div>
{{end}}</body>
</html>
`))

type htmlBlock struct {
	Name         string
	Description  string
	Err          string
	Count        int
	CountDP      int
	Percentage   float64
	PercentageDP float64
	EpsilonUsed  float64
	Color        string
}

type htmlView struct {
	TotalSubjects    int
	TotalEpsilonUsed float64
	Blocks           []htmlBlock
}

// RenderHTML writes the banded HTML report. totalSubjects is the percentage
// denominator; zero disables percentages without dividing by zero.
func RenderHTML(w io.Writer, rep *Report, totalSubjects int) error {
	view := htmlView{
		TotalSubjects:    totalSubjects,
		TotalEpsilonUsed: rep.TotalEpsilonUsed,
	}
	for _, name := range rep.Names() {
		res, _ := rep.Result(name)
		block := htmlBlock{
			Name:        name,
			Description: res.Description,
			Err:         res.Err,
			EpsilonUsed: res.EpsilonUsed,
			Color:       colorGreen,
		}
		if res.Count != nil && res.CountDP != nil {
			block.Count = *res.Count
			block.CountDP = *res.CountDP
			if totalSubjects > 0 {
				block.Percentage = float64(block.Count) / float64(totalSubjects) * 100
				block.PercentageDP = float64(block.CountDP) / float64(totalSubjects) * 100
			}
		}
		block.Color = bandColor(block.PercentageDP)
		view.Blocks = append(view.Blocks, block)
	}
	if err := htmlTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

// SaveHTML renders the report to a file.
func SaveHTML(path string, rep *Report, totalSubjects int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: save html: %w", err)
	}
	if err := RenderHTML(f, rep, totalSubjects); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func bandColor(percentageDP float64) string {
	switch {
	case percentageDP > 10:
		return colorRed
	case percentageDP > 1:
		return colorYellow
	default:
		return colorGreen
	}
}
