package http

import (
	"fmt"
	"html"
	"net/http"

	"go.uber.org/zap"
)

const pageStyle = `
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #ff66aa 0%, #7289da 100%);
        }
        .container {
            background: white;
            padding: 3rem;
            border-radius: 10px;
            box-shadow: 0 10px 40px rgba(0,0,0,0.2);
            text-align: center;
            max-width: 420px;
        }
        .badge {
            width: 80px;
            height: 80px;
            margin: 0 auto 1rem;
            border-radius: 50%;
            display: flex;
            align-items: center;
            justify-content: center;
        }
        .badge svg {
            width: 50px;
            height: 50px;
            stroke: white;
            stroke-width: 3;
            fill: none;
        }
        h1 {
            color: #333;
            margin: 0 0 1rem;
        }
        p {
            color: #666;
            margin: 0;
            line-height: 1.6;
        }
        a.button {
            display: inline-block;
            margin-top: 1.5rem;
            padding: 0.75rem 2rem;
            border-radius: 6px;
            background: #ff66aa;
            color: white;
            text-decoration: none;
            font-weight: 600;
        }
`

func (h *Handlers) renderPage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	page := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>%s</style>
</head>
<body>
    <div class="container">%s</div>
</body>
</html>
`, html.EscapeString(title), pageStyle, body)

	if _, err := w.Write([]byte(page)); err != nil {
		h.logger.Error("failed to write page", zap.Error(err))
	}
}

// renderIndex renders the landing page
func (h *Handlers) renderIndex(w http.ResponseWriter) {
	h.renderPage(w, http.StatusOK, "osu! Linked Roles", `
        <h1>osu! Linked Roles</h1>
        <p>Connect your osu! and Discord accounts to unlock verified
        roles in the community server.</p>
        <a class="button" href="/link">Link your accounts</a>
        <p style="margin-top: 1.5rem;"><a href="/privacy">Privacy notice</a></p>`)
}

// renderPrivacy renders the privacy notice
func (h *Handlers) renderPrivacy(w http.ResponseWriter) {
	h.renderPage(w, http.StatusOK, "Privacy", `
        <h1>Privacy</h1>
        <p>We store your osu! profile statistics and your Discord
        community membership to keep your linked role up to date.
        Provider tokens are encrypted at rest and never shared.</p>
        <p style="margin-top: 1rem;">Revoking the application's access
        on either provider removes your data on the next visit.</p>
        <p style="margin-top: 1.5rem;"><a href="/">Back</a></p>`)
}

// renderSuccess renders the linked confirmation page
func (h *Handlers) renderSuccess(w http.ResponseWriter) {
	h.renderPage(w, http.StatusOK, "Accounts Linked", `
        <div class="badge" style="background: #4caf50;">
            <svg viewBox="0 0 52 52">
                <path d="M14 27l7.5 7.5L38 18"/>
            </svg>
        </div>
        <h1>Accounts Linked!</h1>
        <p>Your osu! profile is now connected to Discord.</p>
        <p style="margin-top: 1rem;">You can close this window and pick
        up your roles in the server.</p>`)
}

// renderError renders an error page
func (h *Handlers) renderError(w http.ResponseWriter, title, message string) {
	body := fmt.Sprintf(`
        <div class="badge" style="background: #f44336;">
            <svg viewBox="0 0 52 52">
                <path d="M16 16l20 20M36 16l-20 20"/>
            </svg>
        </div>
        <h1>%s</h1>
        <p>%s</p>
        <p style="margin-top: 1rem;">Please close this window and try again.</p>`,
		html.EscapeString(title), html.EscapeString(message))

	h.renderPage(w, http.StatusBadRequest, title, body)
}
