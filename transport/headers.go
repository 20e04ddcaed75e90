package transport

import "github.com/xraph/eventbus/core"

// ExtractActivityId reads the reserved ActivityId header, returning "" if
// absent. Used by ConsumeEntry to record it as an attribute of the consume
// span.
func ExtractActivityId(h core.Headers) string {
	if h == nil {
		return ""
	}
	if v, ok := h[core.HeaderActivityId]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// InjectActivityId sets the reserved ActivityId header on h, creating h if
// nil, and returns the (possibly new) map.
func InjectActivityId(h core.Headers, activityId string) core.Headers {
	if h == nil {
		h = core.Headers{}
	}
	h[core.HeaderActivityId] = activityId
	return h
}
