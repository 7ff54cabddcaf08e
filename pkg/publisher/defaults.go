package publisher

// DefaultRuleset is served until a ruleset is persisted.
func DefaultRuleset() Ruleset {
	return Ruleset{
		{
			Condition:   `SLD.matches('^[a-z][a-z]\\.gov$')`,
			Consequent:  Consequent(`QLD == '' ? SLD : QLD + '.' + SLD`),
			Description: "state and local governmental sites",
		},
		{
			Condition:   `TLD == 'gov' || TLD.matches('^go\\.[a-z][a-z]$') || TLD.matches('^gov\\.[a-z][a-z]$')`,
			Consequent:  Consequent(`SLD`),
			Description: "governmental sites",
		},
		{
			Condition:   `SLD == ''`,
			Consequent:  nil,
			Description: "IP addresses and bare public suffixes",
		},
		{
			Condition:   `true`,
			Consequent:  Consequent(`SLD`),
			Description: "the default rule",
		},
	}
}
