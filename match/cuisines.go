package match

// Cuisines is the catalog offered to cuisine search.
var Cuisines = []string{
	"African",
	"American",
	"Asian",
	"Brazilian",
	"British",
	"Cajun",
	"Caribbean",
	"Chinese",
	"Eastern European",
	"Ethiopian",
	"French",
	"German",
	"Greek",
	"Indian",
	"Indonesian",
	"Irish",
	"Italian",
	"Japanese",
	"Korean",
	"Latin American",
	"Lebanese",
	"Mediterranean",
	"Mexican",
	"Middle Eastern",
	"Moroccan",
	"Nordic",
	"Peruvian",
	"Southern",
	"Spanish",
	"Thai",
	"Turkish",
	"Vegan",
	"Vegetarian",
	"Vietnamese",
}
