/*
Copyright 2025 The ReplGate Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package web

import (
	"context"
	"fmt"
	"html/template"
	"net/http"

	"github.com/replgate/replgate/go/rg/discovery"
	"github.com/replgate/replgate/go/rg/log"
)

// instances implements GET /api/v1/instances: the registry snapshot as
// the router sees it.
func (api *API) instances(ctx context.Context, r *http.Request) *JSONResponse {
	return NewJSONResponse(api.registry.Snapshot(), nil)
}

var instancesPageTmpl = template.Must(template.New("instances").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Instances</title>
</head>
<body>
` + discovery.StatusTemplate + `
</body>
</html>
`))

// instancesPageHandler implements GET /debug/instances: the same data
// as the API route, rendered for humans.
func (api *API) instancesPageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := instancesPageTmpl.Execute(w, api.registry.CacheStatus()); err != nil {
		log.Errorf("web: rendering instances page: %v", err)
	}
}

// healthHandler implements GET /debug/health: 200 as long as at least
// one instance is serving, so an otherwise-degraded router still
// reports alive.
func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	for _, ih := range api.registry.Snapshot().All() {
		if ih.Health == discovery.Healthy {
			fmt.Fprint(w, "ok\n")
			return
		}
	}
	http.Error(w, "no healthy instances", http.StatusServiceUnavailable)
}
