package core

import "github.com/xraph/eventbus/busfault"

var errContextNotBound = busfault.ErrLifecycle("republish", nil)
