package devserver

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var funcs = template.FuncMap{
	"lower": func(x fmt.Stringer) string { return strings.ToLower(x.String()) },
	"seconds": func(t uint64) string {
		return time.Duration(t).Round(time.Millisecond).String()
	},
}

const indexText = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Name}}</title>
</head>
<body>
<h1>{{.Name}}</h1>
{{- if .Error}}
<p class="error">{{.Error}}</p>
{{- else}}
<p>{{lower .Kind}}: {{.Frames}} frames, {{seconds .Duration}}</p>
{{- if .Instruments}}
<p>Instruments: {{range $i, $n := .Instruments}}{{if $i}}, {{end}}{{$n}}{{end}}</p>
<p>{{.Events}} events, {{.Pages}} pages{{with .LastMeasure}}, last measure {{.}}{{end}}</p>
{{- end}}
{{- end}}
<script>
const ws = new WebSocket(location.origin.replace(/^http/, "ws") + "/api/ws");
let id = {{.ID.String}};
ws.onmessage = (e) => {
  const st = JSON.parse(e.data);
  if (st.id !== id) location.reload();
};
</script>
</body>
</html>
`

const statusText = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Status}} {{.StatusText}}</title>
</head>
<body>
<h1>{{.Status}} {{.StatusText}}</h1>
{{- if .Message}}
<p>{{.Message}}</p>
{{- end}}
</body>
</html>
`

var (
	indexTemplate  = template.Must(template.New("index").Funcs(funcs).Parse(indexText))
	statusTemplate = template.Must(template.New("status").Funcs(funcs).Parse(statusText))
)

func execute(t *template.Template, data interface{}) ([]byte, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
