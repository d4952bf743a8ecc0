package rule

// ruleDocument is the on-disk shape of a rule file: a root object with a
// "rules" list. Decoded with gopkg.in/yaml.v3, matching the teacher's
// config document conventions.
type ruleDocument struct {
	Rules []ruleDescriptor `yaml:"rules"`
}

// ruleDescriptor is one undecoded rule entry. Conditions is left as
// map[string]any so it can be handed directly to pattern.CompileConditions;
// yaml.v3 decodes nested mappings into map[string]any when the target field
// is declared `any`.
type ruleDescriptor struct {
	ID               string         `yaml:"id"`
	Priority         int            `yaml:"priority"`
	Conditions       map[string]any `yaml:"conditions"`
	Action           string         `yaml:"action"`
	Reason           string         `yaml:"reason"`
	SamplingGuidance string         `yaml:"sampling_guidance"`
}
