package contentfilter

// Word lists are matched against whole tokens of lowercased text, so
// "class" never matches "ass". Inflections are listed explicitly.
var explicitWords = map[string]Severity{
	"fuck":          Explicit,
	"fucks":         Explicit,
	"fucked":        Explicit,
	"fucker":        Explicit,
	"fuckers":       Explicit,
	"fucking":       Explicit,
	"fuckin":        Explicit,
	"motherfucker":  Explicit,
	"motherfuckers": Explicit,
	"motherfucking": Explicit,
	"cunt":          Explicit,
	"cunts":         Explicit,

	"shit":     Moderate,
	"shits":    Moderate,
	"shitty":   Moderate,
	"bullshit": Moderate,
	"bitch":    Moderate,
	"bitches":  Moderate,
	"asshole":  Moderate,
	"assholes": Moderate,
	"dick":     Moderate,
	"pussy":    Moderate,
	"whore":    Moderate,
	"slut":     Moderate,

	"damn":    Mild,
	"dammit":  Mild,
	"goddamn": Mild,
	"hell":    Mild,
	"crap":    Mild,
	"ass":     Mild,
	"piss":    Mild,
	"pissed":  Mild,
	"bastard": Mild,
}

// Phrase lists are matched on token boundaries; every hit is moderate.
var sexualPhrases = []string{
	"sex",
	"sexy",
	"naked",
	"strip club",
	"one night stand",
	"between the sheets",
	"booty call",
	"take it off",
}

var drugPhrases = []string{
	"cocaine",
	"heroin",
	"meth",
	"weed",
	"marijuana",
	"get high",
	"getting high",
	"molly",
	"ecstasy",
	"lsd",
	"xanax",
	"codeine",
	"roll a joint",
}

var violentPhrases = []string{
	"murder",
	"kill you",
	"gonna kill",
	"shoot you",
	"shot him",
	"pull the trigger",
	"bloodbath",
	"slit your throat",
	"beat you down",
}

// radioEditOverrides replace whole phrases and are applied before
// radioEditWords.
var radioEditOverrides = map[string]string{
	"holy shit":     "holy crap",
	"fuck you":      "forget you",
	"shit happens":  "stuff happens",
	"what the fuck": "what the heck",
}

// radioEditWords are substring replacements; "bullshit" becomes "bulls***".
var radioEditWords = map[string]string{
	"motherfucker": "mother******",
	"fuck":         "f***",
	"shit":         "s***",
	"bitch":        "b****",
	"cunt":         "c***",
	"asshole":      "a**hole",
}

// commonIdioms are titles people type verbatim in conversation.
var commonIdioms = map[string]struct{}{
	"happy birthday":       {},
	"good morning":         {},
	"good night":           {},
	"goodbye":              {},
	"hello":                {},
	"hey there":            {},
	"thank you":            {},
	"i love you":           {},
	"i miss you":           {},
	"let it be":            {},
	"let it go":            {},
	"lets go":              {},
	"shake it off":         {},
	"call me maybe":        {},
	"stay with me":         {},
	"see you again":        {},
	"dont worry be happy":  {},
	"all you need is love": {},
	"here comes the sun":   {},
	"good times":           {},
	"home sweet home":      {},
	"dancing queen":        {},
	"happy":                {},
	"sorry":                {},
	"help":                 {},
	"celebration":          {},
	"friday":               {},
	"weekend":              {},
	"road trip":            {},
	"on the road again":    {},
	"walking on sunshine":  {},
	"dont stop me now":     {},
	"party in the usa":     {},
	"i will survive":       {},
	"we are the champions": {},
}

// metaphoricalTitles name an abstract image rather than what a listener
// would describe; a literal request rarely means them.
var metaphoricalTitles = map[string]struct{}{
	"bohemian rhapsody":             {},
	"stairway to heaven":            {},
	"hotel california":              {},
	"purple rain":                   {},
	"yellow submarine":              {},
	"paint it black":                {},
	"smells like teen spirit":       {},
	"champagne supernova":           {},
	"wonderwall":                    {},
	"comfortably numb":              {},
	"black hole sun":                {},
	"karma police":                  {},
	"paranoid android":              {},
	"chandelier":                    {},
	"radioactive":                   {},
	"gravity":                       {},
	"clocks":                        {},
	"yellow":                        {},
	"creep":                         {},
	"viva la vida":                  {},
	"lucy in the sky with diamonds": {},
	"white rabbit":                  {},
	"space oddity":                  {},
	"starman":                       {},
	"the sound of silence":          {},
}
