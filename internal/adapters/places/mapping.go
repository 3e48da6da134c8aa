package places

// typeMapping maps an upstream place type to a merchant category code and a
// reward category. The first matching type in an upstream result wins.
type typeMapping struct {
	mcc      string
	category string
}

// Upstream place types this service knows how to classify. Categories use
// the lowercase names the reward rule tables key on.
var typeMappings = map[string]typeMapping{ //nolint:gochecknoglobals // static lookup table
	// dining and food
	"restaurant":    {mcc: "5812", category: "dining"},
	"food":          {mcc: "5812", category: "dining"},
	"meal_takeaway": {mcc: "5812", category: "dining"},
	"meal_delivery": {mcc: "5812", category: "dining"},
	"bar":           {mcc: "5813", category: "dining"},
	"night_club":    {mcc: "5813", category: "dining"},
	"cafe":          {mcc: "5814", category: "dining"},
	"coffee_shop":   {mcc: "5814", category: "dining"},
	"bakery":        {mcc: "5814", category: "dining"},

	// grocery
	"grocery_or_supermarket": {mcc: "5411", category: "grocery"},
	"supermarket":            {mcc: "5411", category: "grocery"},
	"convenience_store":      {mcc: "5411", category: "grocery"},

	// gas and automotive
	"gas_station": {mcc: "5541", category: "gas"},
	"car_repair":  {mcc: "7538", category: "automotive"},
	"car_wash":    {mcc: "7542", category: "automotive"},

	// travel and lodging
	"lodging":       {mcc: "7011", category: "travel"},
	"hotel":         {mcc: "7011", category: "travel"},
	"travel_agency": {mcc: "4722", category: "travel"},
	"car_rental":    {mcc: "7512", category: "travel"},

	// shopping
	"department_store":  {mcc: "5311", category: "department_store"},
	"clothing_store":    {mcc: "5651", category: "shopping"},
	"shoe_store":        {mcc: "5661", category: "shopping"},
	"electronics_store": {mcc: "5732", category: "shopping"},
	"book_store":        {mcc: "5942", category: "shopping"},
	"jewelry_store":     {mcc: "5944", category: "shopping"},

	// health
	"pharmacy": {mcc: "5912", category: "pharmacy"},
	"hospital": {mcc: "8062", category: "healthcare"},

	// entertainment and services
	"movie_theater": {mcc: "7832", category: "entertainment"},
	"gym":           {mcc: "7991", category: "fitness"},
	"spa":           {mcc: "7298", category: "beauty"},
	"beauty_salon":  {mcc: "7230", category: "beauty"},
	"liquor_store":  {mcc: "5921", category: "alcohol"},
	"bank":          {mcc: "6011", category: "financial"},
	"atm":           {mcc: "6011", category: "financial"},
}

// MapTypes returns the MCC and reward category for the first known type in
// types. Both are empty when nothing matches.
func MapTypes(types []string) (mcc, category string) {
	for _, t := range types {
		if m, ok := typeMappings[t]; ok {
			return m.mcc, m.category
		}
	}
	return "", ""
}
