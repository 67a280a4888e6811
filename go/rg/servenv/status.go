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

package servenv

import (
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/replgate/replgate/go/rg/log"
)

// The status page is a set of registered sections. Each binary adds the
// sections that make sense for it on top of the common header.

var (
	binaryName  = filepath.Base(os.Args[0])
	hostname    string
	serverStart = time.Now()

	statusMu       sync.RWMutex
	statusFuncMap  = make(template.FuncMap)
	statusSections []statusSection
)

type statusSection struct {
	banner   string
	fragment *template.Template
	getValue func() any
}

const statusHeader = `<!DOCTYPE html>
<html>
<head>
<title>Status for {{.BinaryName}}</title>
<style>
body {
  font-family: sans-serif;
}
h1 {
  font-size: 150%;
  background-color: #202a40;
  color: #fff;
  padding: 0.4em;
}
h2 {
  font-size: 120%;
  border-bottom: 1px solid #202a40;
}
table {
  border-collapse: collapse;
}
td, th {
  border: 1px solid #999;
  padding: 0.2em 0.5em;
}
</style>
</head>
<body>
<h1>Status for {{.BinaryName}}</h1>
<div>
started: {{.StartTime}}<br>
running on: {{.Hostname}}<br>
version: {{.Version}}<br>
</div>
`

var statusHeaderTmpl = template.Must(template.New("statusHeader").Parse(statusHeader))

// AddStatusFuncs merges the provided functions into the set available
// to status fragments. Duplicate names panic: they would silently
// shadow whichever registration ran first.
func AddStatusFuncs(fmap template.FuncMap) {
	statusMu.Lock()
	defer statusMu.Unlock()

	for name, f := range fmap {
		if _, ok := statusFuncMap[name]; ok {
			panic("duplicate status func registered: " + name)
		}
		statusFuncMap[name] = f
	}
}

// AddStatusPart adds a new section to the status page. fragment is
// rendered as an html/template with the value returned by f as its
// data. The fragment must parse at registration time; any functions it
// uses must have been added with AddStatusFuncs first.
func AddStatusPart(banner, fragment string, f func() any) {
	statusMu.Lock()
	defer statusMu.Unlock()

	tmpl, err := template.New(banner).Funcs(statusFuncMap).Parse(fragment)
	if err != nil {
		panic(fmt.Sprintf("status fragment %q does not parse: %v", banner, err))
	}
	statusSections = append(statusSections, statusSection{
		banner:   banner,
		fragment: tmpl,
		getValue: f,
	})
}

// AddStatusSection registers a section that displays the plain string
// returned by f.
func AddStatusSection(banner string, f func() string) {
	AddStatusPart(banner, `{{.}}`, func() any { return f() })
}

// StatusURLPath returns the path to the status page.
func StatusURLPath() string {
	return "/debug/status"
}

func statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	data := struct {
		BinaryName string
		Hostname   string
		StartTime  string
		Version    string
	}{
		BinaryName: binaryName,
		Hostname:   hostname,
		StartTime:  serverStart.Format(time.RFC1123),
		Version:    AppVersion.String(),
	}
	if err := statusHeaderTmpl.Execute(w, data); err != nil {
		log.Errorf("servenv: rendering status header: %v", err)
		return
	}

	statusMu.RLock()
	sections := statusSections
	statusMu.RUnlock()

	for _, sec := range sections {
		fmt.Fprintf(w, "<h2>%s</h2>\n", template.HTMLEscapeString(sec.banner))
		if err := sec.fragment.Execute(w, sec.getValue()); err != nil {
			log.Errorf("servenv: rendering status section %q: %v", sec.banner, err)
			fmt.Fprintf(w, "<small>render error: %s</small>\n", template.HTMLEscapeString(err.Error()))
		}
	}
	fmt.Fprintln(w, "</body>\n</html>")
}

func init() {
	var err error
	hostname, err = os.Hostname()
	if err != nil {
		log.Exitf("os.Hostname() failed: %v", err)
	}
	HTTPHandleFunc(StatusURLPath(), statusHandler)
}
