// internal/automation/templates.go
package automation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fusion-sh/fusion/internal/core"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// TemplateContext is the full set of entities a template may reference
// (§4.5.5): event, device, area, location, connector, schedule. Building it
// is a pure function of its inputs — no I/O, no clock.
type TemplateContext struct {
	roots map[string]map[string]any
}

// BuildTemplateContext flattens each entity into a plain map so dotted
// paths can be walked uniformly, and adds the raw enum-id aliases
// (categoryId/typeId/subtypeId) alongside the event's display names.
func BuildTemplateContext(evt core.StandardizedEvent, device *core.Device, area *core.Area, location *core.Location, connector *core.Connector, schedule *core.ArmingSchedule) TemplateContext {
	ctx := TemplateContext{roots: map[string]map[string]any{}}

	eventMap := toMap(evt)
	eventMap["categoryId"] = string(evt.Category)
	eventMap["typeId"] = string(evt.Type)
	eventMap["subtypeId"] = evt.Subtype
	eventMap["originalEventType"] = evt.Payload.RawStateValue
	if evt.Payload.ButtonNumber != nil {
		eventMap["buttonNumber"] = *evt.Payload.ButtonNumber
	}
	if evt.Payload.PressType != "" {
		eventMap["buttonPressType"] = evt.Payload.PressType
	}
	ctx.roots["event"] = eventMap

	if device != nil {
		ctx.roots["device"] = toMap(*device)
	}
	if area != nil {
		ctx.roots["area"] = toMap(*area)
	}
	if location != nil {
		ctx.roots["location"] = toMap(*location)
	}
	if connector != nil {
		ctx.roots["connector"] = toMap(*connector)
	}
	if schedule != nil {
		ctx.roots["schedule"] = toMap(*schedule)
	}
	return ctx
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// Resolve substitutes every {{ path }} token in tmpl. A path that cannot be
// resolved (unknown root, missing field, nil traversal) becomes the empty
// string — it is never an error (§4.5.5).
func Resolve(tmpl string, ctx TemplateContext) string {
	return tokenPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := tokenPattern.FindStringSubmatch(match)[1]
		return lookupPath(path, ctx)
	})
}

func lookupPath(path string, ctx TemplateContext) string {
	segments := strings.Split(path, ".")
	if len(segments) == 0 {
		return ""
	}
	root, ok := ctx.roots[segments[0]]
	if !ok {
		return ""
	}
	var cur any = root
	for _, seg := range segments[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[seg]
		if !ok {
			return ""
		}
	}
	return stringify(cur)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}
