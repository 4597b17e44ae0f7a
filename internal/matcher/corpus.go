package matcher

import "github.com/formpilot/formpilot/internal/domain"

// fieldPhrases is the description corpus for each canonical profile field.
// Question text is compared against every phrase and the best-scoring phrase
// wins for its field. Iteration follows domain.FieldNames declaration order,
// so a score tie resolves to the earlier field.
var fieldPhrases = map[domain.FieldName][]string{
	domain.FieldFullName: {
		"full name", "your name", "name of the student", "participant name",
		"first name last name", "what is your name", "enter your name",
	},
	domain.FieldRegisterNumber: {
		"register number", "registration number", "roll number", "roll no",
		"reg no", "student id", "enrollment number", "admission number",
		"student number", "id number",
	},
	domain.FieldDepartment: {
		"department", "branch", "stream", "field of study",
		"specialization", "major", "course", "programme",
		"which department", "your branch",
	},
	domain.FieldYear: {
		"year of study", "current year", "academic year", "semester",
		"which year", "year", "batch", "graduating year",
	},
	domain.FieldEmail: {
		"email", "email address", "e-mail", "mail id",
		"your email", "email id", "contact email",
	},
	domain.FieldPhone: {
		"phone number", "mobile number", "contact number", "phone",
		"mobile", "cell number", "whatsapp number", "telephone",
		"contact no",
	},
	domain.FieldGender: {
		"gender", "sex", "male or female", "your gender",
	},
	domain.FieldCollegeName: {
		"college name", "university", "institution", "school name",
		"college", "institute", "institution name", "university name",
		"name of your college",
	},
	domain.FieldAddress: {
		"address", "residential address", "home address", "current address",
		"city", "location", "where do you live",
	},
	domain.FieldSkills: {
		"skills", "technical skills", "key skills", "skill set",
		"programming languages", "technologies", "tools known",
		"what skills do you have",
	},
	domain.FieldInterests: {
		"interests", "hobbies", "areas of interest", "what are your interests",
		"hobbies and interests", "passion", "what excites you",
	},
	domain.FieldBio: {
		"about yourself", "tell us about yourself", "brief introduction",
		"self introduction", "describe yourself", "bio", "about you",
		"introduce yourself",
	},
}

// corpusEntry ties one phrase to its field.
type corpusEntry struct {
	field  domain.FieldName
	phrase string
}

// corpus flattens fieldPhrases into a stable ordered slice.
func corpus() []corpusEntry {
	var entries []corpusEntry
	for _, f := range domain.FieldNames {
		for _, p := range fieldPhrases[f] {
			entries = append(entries, corpusEntry{field: f, phrase: p})
		}
	}
	return entries
}
