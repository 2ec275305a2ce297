package email

import (
	"bytes"
	"fmt"
	"html/template"
)

type templateData struct {
	Name string
	Code string
	TTL  string
}

var verificationTmpl = template.Must(template.New("verification").Parse(`
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Подтверждение email</h2>
  <p>Здравствуйте{{if .Name}}, {{.Name}}{{end}}!</p>
  <p>Ваш код подтверждения:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
  <p>Код действителен в течение {{.TTL}}. Если вы не запрашивали подтверждение, просто проигнорируйте это письмо.</p>
</body>
</html>`))

var passwordResetTmpl = template.Must(template.New("password_reset").Parse(`
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Сброс пароля</h2>
  <p>Здравствуйте{{if .Name}}, {{.Name}}{{end}}!</p>
  <p>Ваш код для сброса пароля:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
  <p>Код действителен в течение {{.TTL}}. Если вы не запрашивали сброс пароля, никому не сообщайте этот код.</p>
</body>
</html>`))

func renderTemplate(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template %q: %w", t.Name(), err)
	}
	return buf.String(), nil
}
