package offline

import (
	"net/http"

	"wellsite/internal/cachestore"
)

const offlinePage = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Offline</title>
    <style>
      body { font-family: system-ui, sans-serif; text-align: center; padding: 50px; }
      h1 { color: #333; }
      p { color: #666; }
    </style>
  </head>
  <body>
    <h1>Offline</h1>
    <p>You appear to be offline. Please check your connection.</p>
  </body>
</html>
`

// OfflineResponse is the synthesized 503 page served when nothing better is
// available. Each call returns a fresh entry.
func OfflineResponse() cachestore.Entry {
	return cachestore.NewEntry(http.StatusServiceUnavailable, http.Header{
		"Content-Type":  []string{"text/html; charset=utf-8"},
		"Cache-Control": []string{"no-store"},
	}, []byte(offlinePage))
}
