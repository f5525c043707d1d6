package auth

import "strings"

// Policy decides which authenticated subjects may administer the calendar.
type Policy interface {
	IsAdmin(subject string) bool
}

// AllowList grants admin to a fixed set of subjects, compared without case.
type AllowList map[string]struct{}

func NewAllowList(subjects ...string) AllowList {
	al := make(AllowList, len(subjects))
	for _, s := range subjects {
		if s = normalize(s); s != "" {
			al[s] = struct{}{}
		}
	}
	return al
}

func (al AllowList) IsAdmin(subject string) bool {
	_, ok := al[normalize(subject)]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
