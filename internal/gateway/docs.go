package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Documentation rendering itself is an external collaborator (spec §1:
// "explicitly out of scope ... the HTML bundling and API documentation
// rendering"); the gateway's job is only to serve the static index locally
// per the routing table (spec §4.1: "/api-docs* | local static"), not to
// generate it.
var docServices = []string{"gateway", "auth", "chat", "video"}

func handleDocsIndex(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, docsIndexHTML())
}

func handleDocsService(c *gin.Context) {
	service := c.Param("service")
	for _, s := range docServices {
		if s == service {
			c.Header("Content-Type", "text/html; charset=utf-8")
			c.String(http.StatusOK, docsServiceHTML(service))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "unknown service: " + service})
}

func docsIndexHTML() string {
	return `<!doctype html><html><head><title>API Documentation</title></head><body>` +
		`<h1>collabhub/realtime API documentation</h1><ul>` +
		`<li><a href="/api-docs/gateway">gateway</a></li>` +
		`<li><a href="/api-docs/auth">auth</a></li>` +
		`<li><a href="/api-docs/chat">chat</a></li>` +
		`<li><a href="/api-docs/video">video</a></li>` +
		`</ul></body></html>`
}

func docsServiceHTML(service string) string {
	return `<!doctype html><html><head><title>` + service + ` API</title></head><body>` +
		`<h1>` + service + ` service</h1><p>OpenAPI rendering for this service is generated out of band.</p>` +
		`</body></html>`
}
