package testutil

import (
	"github.com/brianvoe/gofakeit/v7"
)

// generators build one fake record per resource type.
var generators = map[string]func(f *gofakeit.Faker) map[string]interface{}{
	"tutors": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"name": f.Name(), "email": f.Email(), "department": f.BuzzWord()}
	},
	"students": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"name": f.Name(), "email": f.Email(), "year": f.Number(1, 4)}
	},
	"courses": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"name": f.JobTitle(), "code": f.LetterN(3) + f.DigitN(3), "credits": f.Number(1, 6)}
	},
	"assignments": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"title": f.Sentence(4), "due_date": f.Date().Format("2006-01-02"), "max_score": 100}
	},
	"submissions": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"assignment": f.Number(1, 50), "student": f.Name(), "grade": f.Number(0, 100)}
	},
	"news": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"title": f.Sentence(6), "body": f.Paragraph(1, 3, 12, " "), "published_at": f.Date().Format("2006-01-02")}
	},
	"events": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"title": f.Sentence(3), "location": f.City(), "date": f.Date().Format("2006-01-02")}
	},
	"donations": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"donor": f.Name(), "amount": f.Price(10, 1000), "campaign": f.RandomString([]string{"scholarship", "library", "sports"})}
	},
	"executives": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"name": f.Name(), "position": f.JobTitle(), "email": f.Email()}
	},
	"groups": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{"name": f.Company(), "members": f.Number(2, 200)}
	},
	"finances": func(f *gofakeit.Faker) map[string]interface{} {
		return map[string]interface{}{
			"description": f.BuzzWord(),
			"amount":      f.Price(50, 5000),
			"type":        f.RandomString([]string{"income", "expense"}),
			"date":        f.Date().Format("2006-01-02"),
		}
	},
}

// FakeItems generates n deterministic records for the resource type.
// Records carry no id; Portal.Seed assigns one.
func FakeItems(resource string, n int, seed uint64) []map[string]interface{} {
	gen, ok := generators[resource]
	if !ok {
		gen = func(f *gofakeit.Faker) map[string]interface{} {
			return map[string]interface{}{"name": f.Name()}
		}
	}
	f := gofakeit.New(seed)
	items := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, gen(f))
	}
	return items
}
