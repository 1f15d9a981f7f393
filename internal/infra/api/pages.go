package api

import (
	"html/template"
	"net/http"

	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/usecase"
)

var callbackPage = template.Must(template.New("cb").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020} .wait{color:#8a6d00}
.btn{display:inline-block;margin-top:16px;margin-right:8px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{.Class}}">{{.Title}}</h2>
  <p>{{.Message}}</p>
  {{if .ConfirmationCode}}<p class="small">Confirmation code: {{.ConfirmationCode}}</p>{{end}}
  {{if .OrderID}}<p class="small">Order ID: {{.OrderID}}</p>{{end}}
  {{if .Retry}}<a class="btn" href="{{.RetryURL}}">Check again</a>{{end}}
  <a class="btn" href="{{.HomeURL}}">Back to the store</a>
</div>
</body>
</html>`))

type callbackView struct {
	Title            string
	Class            string
	Message          string
	ConfirmationCode string
	OrderID          string
	Retry            bool
	RetryURL         string
	HomeURL          string
}

func (s *Server) renderCallback(w http.ResponseWriter, r *http.Request, out *usecase.ReconcileOutcome) {
	v := callbackView{
		Message:          out.Message,
		ConfirmationCode: out.ConfirmationCode,
		OrderID:          out.OrderID,
		RetryURL:         r.URL.RequestURI(),
		HomeURL:          s.homeURL,
	}
	switch out.State {
	case model.CallbackSuccess:
		v.Title, v.Class = "Payment Successful", "ok"
	case model.CallbackPending, model.CallbackVerifying:
		v.Title, v.Class, v.Retry = "Payment Processing", "wait", true
	default:
		v.Title, v.Class = "Payment Not Completed", "fail"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = callbackPage.Execute(w, v)
}

var downloadErrorPage = template.Must(template.New("dl").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Download unavailable</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.fail{color:#b00020}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
</style>
</head>
<body>
<div class="card">
  <h2 class="fail">Download unavailable</h2>
  <p>{{.Message}}</p>
  <a class="btn" href="{{.HomeURL}}">Back to the store</a>
</div>
</body>
</html>`))

func (s *Server) renderDownloadError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = downloadErrorPage.Execute(w, struct {
		Message string
		HomeURL string
	}{Message: msg, HomeURL: s.homeURL})
}
