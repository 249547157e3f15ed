package dispatch

// Preset is a provider/model pair offered to the user.
type Preset struct {
	Label   string
	Backend string
	Model   string
}

// Presets lists the known provider/model combinations, default first.
var Presets = []Preset{
	{Label: "Azure · gpt-4o-mini", Backend: "azure", Model: "gpt-4o-mini"},
	{Label: "Groq · Llama 3.3 70B", Backend: "groq", Model: "llama-3.3-70b-versatile"},
	{Label: "Groq · Llama 3.3 8B", Backend: "groq", Model: "llama-3.3-8b-instant"},
}

// PresetFor returns the first preset of a provider.
func PresetFor(backend string) (Preset, bool) {
	for _, p := range Presets {
		if p.Backend == backend {
			return p, true
		}
	}
	return Preset{}, false
}

// LabelFor returns the preset label matching sel, or "" for custom models.
func LabelFor(sel Selection) string {
	for _, p := range Presets {
		if p.Backend == sel.Backend && p.Model == sel.Model {
			return p.Label
		}
	}
	return ""
}
