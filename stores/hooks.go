package stores

import "time"

type multiHook []MetricsHook

// MultiHook returns a MetricsHook that calls each of hooks in order. Nil
// hooks are skipped; with none left it returns nil.
func MultiHook(hooks ...MetricsHook) MetricsHook {
	var m multiHook
	for _, h := range hooks {
		if h != nil {
			m = append(m, h)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

func (m multiHook) OnSave(duration time.Duration, entries int, err error) {
	for _, h := range m {
		h.OnSave(duration, entries, err)
	}
}

func (m multiHook) OnLoad(duration time.Duration, entries int, err error) {
	for _, h := range m {
		h.OnLoad(duration, entries, err)
	}
}
