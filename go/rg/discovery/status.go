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

package discovery

import (
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// StatusTemplate is the HTML code to display an InstanceCacheStatusList.
const StatusTemplate = `
<style>
  table {
    border-collapse: collapse;
  }
  td, th {
    border: 1px solid #999;
    padding: 0.2rem;
  }
</style>
<table>
  <tr>
    <th colspan="6">Instance Registry</th>
  </tr>
  <tr>
    <th>Instance</th>
    <th>Role</th>
    <th>Region</th>
    <th>Watermark</th>
    <th>Status</th>
    <th>Recent Transitions</th>
  </tr>
  {{range $i, $s := .}}
  <tr>
    <td>{{$s.Health.Instance.ID}}</td>
    <td>{{$s.Health.Instance.Role}}</td>
    <td>{{$s.Health.Instance.Region}}</td>
    <td>{{$s.Health.Watermark}}</td>
    <td>{{$s.StatusAsHTML}}</td>
    <td>{{$s.TransitionsAsHTML}}</td>
  </tr>
  {{end}}
</table>
`

// InstanceCacheStatus is one instance's health plus its retained
// transitions, for display.
type InstanceCacheStatus struct {
	Health      *InstanceHealth
	Transitions []*HealthTransition
}

// StatusAsHTML returns an HTML version of the status.
func (ics *InstanceCacheStatus) StatusAsHTML() template.HTML {
	h := ics.Health
	color := "green"
	switch h.Health {
	case Unreachable:
		color = "red"
	case Degraded:
		color = "orange"
	case HealthUnknown:
		color = "gray"
	}

	extra := ""
	if h.LastError != "" {
		extra = fmt.Sprintf(" (%s)", template.HTMLEscapeString(h.LastError))
	} else if h.Lag > 0 {
		extra = fmt.Sprintf(" (lag %v)", h.Lag.Round(time.Millisecond))
	}

	probed := "never probed"
	if !h.LastProbe.IsZero() {
		probed = "probed " + humanize.Time(h.LastProbe)
	}

	return template.HTML(fmt.Sprintf(`<span style="color:%v">%v</span>%v, rtt %v, %v`,
		color, h.Health, extra, h.RTT.Round(time.Microsecond), probed))
}

// TransitionsAsHTML returns the retained transitions, most recent
// first.
func (ics *InstanceCacheStatus) TransitionsAsHTML() template.HTML {
	lines := make([]string, 0, len(ics.Transitions))
	for _, t := range ics.Transitions {
		lines = append(lines, fmt.Sprintf("%v %v", t.Health, humanize.Time(t.At)))
	}
	return template.HTML(strings.Join(lines, "<br>"))
}

// InstanceCacheStatusList is used for sorting: primary first, then by
// instance id.
type InstanceCacheStatusList []*InstanceCacheStatus

// Len is part of sort.Interface.
func (icsl InstanceCacheStatusList) Len() int {
	return len(icsl)
}

// Less is part of sort.Interface.
func (icsl InstanceCacheStatusList) Less(i, j int) bool {
	a, b := icsl[i].Health.Instance, icsl[j].Health.Instance
	if a.IsPrimary() != b.IsPrimary() {
		return a.IsPrimary()
	}
	return a.ID < b.ID
}

// Swap is part of sort.Interface.
func (icsl InstanceCacheStatusList) Swap(i, j int) {
	icsl[i], icsl[j] = icsl[j], icsl[i]
}

// CacheStatus returns a displayable version of the registry.
func (r *Registry) CacheStatus() InstanceCacheStatusList {
	snap := r.Snapshot()
	statuses := make(InstanceCacheStatusList, 0, len(snap.Replicas)+1)
	for _, ih := range snap.All() {
		statuses = append(statuses, &InstanceCacheStatus{
			Health:      ih,
			Transitions: r.Transitions(ih.Instance.ID),
		})
	}
	sort.Sort(statuses)
	return statuses
}
