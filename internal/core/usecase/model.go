package usecase

import "strings"

// ModelResolver maps a requested model alias to a deployment name.
type ModelResolver struct {
	Default string
	Aliases map[string]string
}

// Resolve falls back to the default deployment for empty or unknown names.
func (r ModelResolver) Resolve(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return r.Default
	}
	if deployment, ok := r.Aliases[requested]; ok && deployment != "" {
		return deployment
	}
	for alias, deployment := range r.Aliases {
		if strings.EqualFold(alias, requested) && deployment != "" {
			return deployment
		}
	}
	return r.Default
}
