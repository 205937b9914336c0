package http

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>BodegaMap Search API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: '/docs/openapi.json', dom_id: '#swagger-ui', deepLinking: true});
  </script>
</body>
</html>`

// SpecPath is where the OpenAPI document is read from, relative to the working directory.
var SpecPath = "api/openapi.yaml"

// apiDoc loads and validates the OpenAPI document once.
type apiDoc struct {
	path string
	once sync.Once
	raw  []byte
	spec *openapi3.T
	err  error
}

func (d *apiDoc) load() error {
	d.once.Do(func() {
		d.raw, d.err = os.ReadFile(d.path)
		if d.err != nil {
			return
		}
		loader := &openapi3.Loader{IsExternalRefsAllowed: false}
		d.spec, d.err = loader.LoadFromData(d.raw)
		if d.err == nil {
			d.err = d.spec.Validate(context.Background())
		}
		if d.err != nil {
			d.err = fmt.Errorf("openapi document %s: %w", d.path, d.err)
		}
	})
	return d.err
}

// SetupDocs registers Swagger UI at /docs and the OpenAPI document at
// /docs/openapi.yaml and /docs/openapi.json. An invalid document is not served.
func SetupDocs(app *fiber.App) {
	doc := &apiDoc{path: SpecPath}

	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(swaggerUIHTML)
	})
	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		if err := doc.load(); err != nil {
			LoggerFromCtx(c.UserContext()).Warn("api docs unavailable", "error", err)
			return errNotFound(c, "openapi document not available")
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(doc.raw)
	})
	app.Get("/docs/openapi.json", func(c *fiber.Ctx) error {
		if err := doc.load(); err != nil {
			LoggerFromCtx(c.UserContext()).Warn("api docs unavailable", "error", err)
			return errNotFound(c, "openapi document not available")
		}
		return c.JSON(doc.spec)
	})
}
