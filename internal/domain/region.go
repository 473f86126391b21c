package domain

import "strings"

// moscowRegions lists Moscow and Moscow-oblast place names, Cyrillic and Latin.
// Matching is by substring, so short entries such as "мо" also hit unrelated
// names that merely contain them.
var moscowRegions = []string{
	"москва", "moscow", "мск",
	"московская область", "подмосковье", "мо",
	"балашиха", "химки", "подольск", "королёв", "королев", "мытищи",
	"люберцы", "красногорск", "электросталь", "коломна",
	"одинцово", "домодедово", "серпухов", "щёлково", "щелково",
	"орехово-зуево", "раменское", "долгопрудный", "реутов",
	"жуковский", "пушкино", "ногинск", "сергиев посад",
	"balashikha", "khimki", "podolsk", "korolev", "mytishchi",
	"lyubertsy", "krasnogorsk", "elektrostal", "kolomna",
	"odintsovo", "domodedovo", "serpukhov", "shchyolkovo",
	"orekhovo-zuyevo", "ramenskoye", "dolgoprudny", "reutov",
	"zhukovsky", "pushkino", "noginsk", "sergiev posad",
}

// IsMoscowRegion reports whether city or region names the Moscow metro area.
func IsMoscowRegion(city, region string) bool {
	check := strings.ToLower(city + " " + region)
	for _, name := range moscowRegions {
		if strings.Contains(check, name) {
			return true
		}
	}
	return false
}
