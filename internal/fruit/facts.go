package fruit

var info = [Count]string{
	Apple:      "Apples are rich in fiber, vitamins, and antioxidants. They may help reduce the risk of heart disease and diabetes.",
	Banana:     "Bananas are high in potassium and fiber. They support heart health and aid digestion.",
	Grapes:     "Grapes are packed with antioxidants like resveratrol. They may have anti-aging properties and support heart health.",
	Kiwi:       "Kiwis are high in vitamin C and fiber. They support immune function and digestive health.",
	Mango:      "Mangoes are rich in vitamins A and C. They support eye health and boost the immune system.",
	Orange:     "Oranges are known for their high vitamin C content. They support immune function and skin health.",
	Strawberry: "Strawberries are low in calories but high in vitamin C and antioxidants. They may help improve heart health and blood sugar control.",
}

var funFacts = [Count]string{
	Apple:      "There are over 7,500 varieties of apples grown worldwide, each with its unique flavor profile!",
	Banana:     "Bananas are berries, but strawberries aren't! Botanically, bananas are classified as berries.",
	Grapes:     "It takes about 2.5 pounds of grapes to produce one bottle of wine.",
	Kiwi:       "Kiwifruit is also known as Chinese gooseberry and was renamed for marketing purposes.",
	Mango:      "Mangoes belong to the same family as cashews and pistachios!",
	Orange:     "Orange trees can live and produce fruit for up to 100 years under optimal conditions.",
	Strawberry: "Strawberries are the only fruit with seeds on the outside, with the average berry having about 200 seeds!",
}

var emojis = [Count]string{
	Apple:      "🍎",
	Banana:     "🍌",
	Grapes:     "🍇",
	Kiwi:       "🥝",
	Mango:      "🥭",
	Orange:     "🍊",
	Strawberry: "🍓",
}

// Bar colours, picked by the position of a label in the session tally.
var palette = []string{"#4CAF50", "#FFC107", "#FF5733", "#3498DB", "#8E44AD", "#E67E22", "#16A085", "#F39C12"}

// Info returns a short nutrition note for the label.
func Info(l Label) string {
	if !l.Valid() {
		return ""
	}
	return info[l]
}

func FunFact(l Label) string {
	if !l.Valid() {
		return ""
	}
	return funFacts[l]
}

func Emoji(l Label) string {
	if !l.Valid() {
		return ""
	}
	return emojis[l]
}

// Color returns the hex colour for the i-th bar of a chart.
func Color(i int) string {
	if i < 0 {
		i = -i
	}
	return palette[i%len(palette)]
}
