package render

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"grantwatch/internal/grant"
)

var documentTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"stars": func(n int) string { return strings.Repeat("⭐", n) },
}).Parse(`<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="UTF-8">
<title>Гранты МГТУ — {{.GeneratedAt.Format "02.01.2006"}}</title>
<style>
body { font-family: Arial, sans-serif; max-width: 1200px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
.header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 30px; border-radius: 10px; margin-bottom: 30px; }
.grant-card { background: white; padding: 25px; margin-bottom: 20px; border-radius: 10px; box-shadow: 0 2px 8px rgba(0,0,0,0.1); border-left: 4px solid #667eea; }
.amount { color: #28a745; font-weight: bold; }
.link { display: inline-block; margin-top: 15px; padding: 10px 20px; background: #667eea; color: white; text-decoration: none; border-radius: 5px; }
</style>
</head>
<body>
<div class="header">
<h1>🎯 Гранты для МГТУ им. Баумана</h1>
<p>📅 Дата отчета: {{.GeneratedAt.Format "02.01.2006 15:04"}}</p>
<p>📊 Найдено грантов: {{len .Grants}}</p>
</div>
{{range .Grants}}<div class="grant-card">
<h3>#{{.Position}} {{.Title}}</h3>
<div>{{stars .Rating}}</div>
<p><b>👤 Организатор:</b> {{.Organizer}}</p>
<p><b>💰 Финансирование:</b> <span class="amount">{{.AmountText}}</span></p>
<p><b>📊 Направление:</b> {{.Direction}}</p>
<p><b>⏰ Срок подачи:</b> {{.DeadlineInfo}}</p>
<p><b>⏳ Срок реализации:</b> {{.ProjectDuration}}</p>
<p><b>📝 Описание:</b> {{.Description}}</p>
{{if .SourceURL}}<a href="{{.SourceURL}}" class="link" target="_blank">🔗 Подробнее</a>
{{end}}</div>
{{end}}<div style="text-align: center; margin-top: 40px; color: #666;">
<p>🤖 Автоматический мониторинг грантов МГТУ им. Баумана</p>
</div>
</body>
</html>
`))

// Document renders the ranked list as a self-contained HTML report. Output is
// deterministic for a given (ranked, generatedAt) pair; an empty list yields
// a valid empty-body document.
func Document(ranked []grant.Ranked, generatedAt time.Time) []byte {
	var buf bytes.Buffer
	// The only dynamic inputs are plain values; template execution cannot
	// fail after Must has parsed.
	_ = documentTemplate.Execute(&buf, struct {
		Grants      []grant.Ranked
		GeneratedAt time.Time
	}{ranked, generatedAt})
	return buf.Bytes()
}
