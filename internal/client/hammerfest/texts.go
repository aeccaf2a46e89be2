package hammerfest

import (
	"strings"

	"github.com/eternaltwin/etwin/internal/model"
)

// ScraperTexts はサーバーごとのページの文言。
type ScraperTexts struct {
	// weekdays は曜日名から1(月曜日)から7(日曜日)への対応
	weekdays map[string]uint8
	// months は月名(省略形を含む)から1から12への対応
	months map[string]uint8
	// quests はクエスト名からクエストIDへの対応
	quests map[string]model.HammerfestQuestID
	// publicThemes はゲストにも公開されているフォーラムのテーマ
	publicThemes map[model.HammerfestForumThemeID]bool
	// signIn はゲストの上部バーに表示されるログインボタンの文言
	signIn string
	// moreGames はログイン中のショップへのリンクのtitle属性
	moreGames string
}

// TextsFor はサーバーの文言を返す。
func TextsFor(server model.HammerfestServer) *ScraperTexts {
	switch server {
	case model.HammerfestServerEs:
		return textsEs
	case model.HammerfestServerEn:
		return textsEn
	default:
		return textsFr
	}
}

// Weekday は曜日名を1から7の番号に変換する。
func (t *ScraperTexts) Weekday(name string) (uint8, bool) {
	n, ok := t.weekdays[strings.ToLower(name)]
	return n, ok
}

// Month は月名を1から12の番号に変換する。
func (t *ScraperTexts) Month(name string) (uint8, bool) {
	n, ok := t.months[strings.ToLower(name)]
	return n, ok
}

// Quest はプロフィールに表示されるクエスト名をIDに変換する。
func (t *ScraperTexts) Quest(name string) (model.HammerfestQuestID, bool) {
	id, ok := t.quests[name]
	return id, ok
}

// IsPublicTheme はテーマがゲストに公開されているか返す。
func (t *ScraperTexts) IsPublicTheme(id model.HammerfestForumThemeID) bool {
	return t.publicThemes[id]
}

// detectServer は上部バーの文言からサーバーを判定する。
func detectServer(signIn, moreGames string) (model.HammerfestServer, bool) {
	for _, server := range model.HammerfestServers() {
		texts := TextsFor(server)
		if (signIn != "" && signIn == texts.signIn) || (moreGames != "" && moreGames == texts.moreGames) {
			return server, true
		}
	}
	return "", false
}

type questTitles struct {
	id model.HammerfestQuestID
	fr string
	en string
	es string
}

var questList = []questTitles{
	{"0", "Les constellations", "Constellations", "Las constelaciones"},
	{"1", "Mixtures du zodiaque", "Zodiac mixture", "Influencias del zodíaco"},
	{"2", "Premiers pas", "First steps", "Primeros pasos"},
	{"3", "L'aventure commence", "The adventure begins", "La aventura comienza"},
	{"4", "Une destinée épique", "An epic fate", "Un destino épico"},
	{"5", "Persévérance", "Perseverance", "Perseverancia"},
	{"6", "Gourmandise", "Delicacies", "Gourmand"},
	{"7", "Du sucre !", "Some sugar!", "¡Quiero algo dulce!"},
	{"8", "Malnutrition", "Malnutrition", "Malnutrición"},
	{"9", "Goût raffiné", "Good taste", "Gusto refinado"},
	{"10", "Avancée technologique", "Technological advance", "Avance tecnológico"},
	{"11", "Le petit guide des Champignons", "Small guide to mushrooms", "La pequeña guía de hongos"},
	{"12", "Trouver les pièces d'or secrètes !", "Find the secret golden coins!", "¡Encuentra las monedas de oro secretas!"},
	{"13", "Le grimoire des Etoiles", "The book of Magic Stars", "El grimorio de las Estrellas"},
	{"14", "Armageddon", "Armageddon", "Armageddon"},
	{"15", "Régime MotionTwin", "MotionTwin Diet", "Régimen MotionTwin"},
	{"16", "Créateur de jeu en devenir", "Creator of games", "Creador de juegos innovadores"},
	{"17", "La vie est une boîte de chocolats", "Life is like a box of chocolates...", "La vida es como una caja de bombones..."},
	{"18", "Le trésor Oune-difaïned", "Difaïned treasure", "El tesoro difaïned"},
	{"19", "Super size me !", "Super size me!", "Super size me!"},
	{"20", "Maître joaillier", "Master jeweller", "Maestro joyero"},
	{"21", "Grand prédateur", "Great Predator", "Gran Depredador"},
	{"22", "Expert en salades et potages", "Expert in salads and stews", "Experto en ensaladas y potajes"},
	{"23", "Festin d'Hammerfest", "Hammerfest Feast", "Festín de Hammerfest"},
	{"24", "Goûter d'anniversaire", "Birthday party", "Merienda de cumpleaños"},
	{"25", "Bon vivant", "Bon vivant", "Vividor"},
	{"26", "Fondue norvégienne", "Norwegian fondue", "Fondue noruega"},
	{"27", "Mystère de Guu", "Guu's mistery", "Misterio de Guu"},
	{"28", "Friandises divines", "Divine sweets", "Chucherías divinas"},
	{"29", "Igor et Cortex", "Igor and Cortex", "Igor y Cortex"},
	{"30", "Affronter l'obscurité", "Facing the darkness", "Afrontar la oscuridad"},
	{"31", "Et la lumière fût !", "And light appeared!", "¡Y se hizo la luz!"},
	{"32", "Noël sur Hammerfest !", "Christmas in Hammerfest!", "¡Navidad en Hammerfest!"},
	{"33", "Joyeux anniversaire Igor", "Happy birthday Igor", "Feliz cumpleaños Igor"},
	{"34", "Cadeau céleste", "Celestial present", "Regalo celestial"},
	{"35", "Achat de parties amélioré", "Game purchase enhanced", "Compra de partidas mejorada"},
	{"36", "Exterminateur de Sorbex", "Sorbex exterminator", "Exterminador de Sorbetex"},
	{"37", "Désamorceur de Bombinos", "Bombino disposal expert", "Desactivador de Bombinos"},
	{"38", "Tueur de poires", "Pear killer", "Asesino de peras"},
	{"39", "Mixeur de Tagadas", "Tagadas mixer", "Triturador de Tagadas"},
	{"40", "Kiwi frotte s'y pique", "Kiwi itches! ouch, it scratches!", "Kiwi rasca, vaya cómo pica..."},
	{"41", "Chasseur de Bondissantes", "Leaping Hunter", "Cazador de Sandinas"},
	{"42", "Tronçonneur d'Ananargeddons", "Armaggedon-Pineapple Killer", "Aniquilador de Piñaguedones"},
	{"43", "Roi de Hammerfest", "Hammerfest King", "Rey de Hammerfest"},
	{"44", "Chapelier fou", "Mad hatter", "Sombrero loco"},
	{"45", "Poney éco-terroriste", "Eco-terrorist pony", "Poni eco-terrorista"},
	{"46", "Le Pioupiouz est en toi", "The Pioupiou is in you", "El Pioupiouz está en ti"},
	{"47", "Chasseur de champignons", "Mushrooms hunter", "Cazador de champiñones"},
	{"48", "Successeur de Tuberculoz", "Tuber's successor", "Sucesor de Tubérculo"},
	{"49", "La première clé !", "The first Key!", "¡La primera Llave!"},
	{"50", "Rigor Dangerous", "Rigor Dangerous", "Rigor Dangerous"},
	{"51", "La Méluzzine perdue", "The lost Meluzin", "La Meluzine perdida"},
	{"52", "Enfin le Bourru !", "At last, the drunk man!", "¡Por fin el borracho!"},
	{"53", "Congélation", "Frozen", "Congelación"},
	{"54", "Une clé rouillée", "A rusty key", "Una llave herrumbrosa"},
	{"55", "Laissez passer !", "Let it go!", "¡Dejadlo libre!"},
	{"56", "Les mondes ardus", "The Arduous Worlds", "Los Mundos Arduos"},
	{"57", "Viiiite !", "Quickly!", "¡Ráaapido!"},
	{"58", "Faire les poches à Tubz", "Empty Tuber's pocket", "Vacíarle los bolsillos a Tubérculo"},
	{"59", "Tuberculoz, seigneur des enfers", "Tuber, Master of Hell", "Tubérculo, señor de los infiernos"},
	{"60", "L'eau ferrigineuneuse", "Metallic water", "El agua que sabe a perfume"},
	{"61", "Paperasse administrative", "Paperwork", "Papeleo"},
	{"62", "Meilleur joueur", "Best Player", "Mejor jugador"},
	{"63", "Miroir, mon beau miroir", "Mirror, my beautiful mirror", "Espejo, mi bonito espejo"},
	{"64", "Mode cauchemar", "Nightmare mode", "Modo pesadilla"},
	{"65", "L'aventure continue !", "The adventure continues!", "¡La aventura continúa!"},
	{"66", "Joyau d'Ankhel", "Ankhel Jewel", "Joya de Ankhel"},
	{"67", "Sandy commence l'aventure !", "Sandy's adventure begins!", "¡Sandy comienza la aventura!"},
	{"68", "Miroir, NOTRE beau miroir", "Mirror, OUR beautiful mirror", "Espejo, NUESTRO bonito espejo"},
	{"69", "Mode double cauchemar", "Double-nightmare option", "Modo Doble Pesadilla"},
	{"70", "Une grande Amitié", "A great Friendship", "Una gran Amistad"},
	{"71", "Apprentissage des canifs volants", "Learning how to launch Shurikens", "Aprendizaje de lanzamiento shurikens"},
	{"72", "Shinobi do !", "Shinobi do!", "¡Shinobi do!"},
	{"73", "Rapide comme l'éclair !", "As quick as the lightning!", "Rápido como el rayo..."},
	{"74", "Maître des Bombes", "Bomb Master", "Maestro de Bombas"},
	{"75", "Tombeau de Tuberculoz", "Tuber's tomb", "Tumba de Tubérculo"},
}

func questsBy(title func(q questTitles) string) map[string]model.HammerfestQuestID {
	res := make(map[string]model.HammerfestQuestID, len(questList))
	for _, q := range questList {
		res[title(q)] = q.id
	}
	return res
}

func themeSet(ids ...model.HammerfestForumThemeID) map[model.HammerfestForumThemeID]bool {
	res := make(map[model.HammerfestForumThemeID]bool, len(ids))
	for _, id := range ids {
		res[id] = true
	}
	return res
}

var textsFr = &ScraperTexts{
	weekdays: map[string]uint8{
		"lundi": 1, "mardi": 2, "mercredi": 3, "jeudi": 4, "vendredi": 5, "samedi": 6, "dimanche": 7,
	},
	months: map[string]uint8{
		"janv.": 1, "janvier": 1,
		"févr.": 2, "février": 2,
		"mars":  3,
		"avril": 4,
		"mai":   5,
		"juin":  6,
		"juil.": 7, "juillet": 7,
		"août":  8,
		"sept.": 9, "septembre": 9,
		"oct.":  10, "octobre": 10,
		"nov.":  11, "novembre": 11,
		"déc.":  12, "décembre": 12,
	},
	quests:       questsBy(func(q questTitles) string { return q.fr }),
	publicThemes: themeSet("2", "3", "4", "5", "6", "7"),
	signIn:       "Entrer",
	moreGames:    "Plus de Parties",
}

var textsEs = &ScraperTexts{
	weekdays: map[string]uint8{
		"lunes": 1, "martes": 2, "miércoles": 3, "jueves": 4, "viernes": 5, "sábado": 6, "domingo": 7,
	},
	months: map[string]uint8{
		"ene": 1, "enero": 1,
		"feb": 2, "febrero": 2,
		"mar": 3, "marzo": 3,
		"abr": 4, "abril": 4,
		"may": 5, "mayo": 5,
		"jun": 6, "junio": 6,
		"jul": 7, "julio": 7,
		"ago": 8, "agosto": 8,
		"sep": 9, "septiembre": 9,
		"oct": 10, "octubre": 10,
		"nov": 11, "noviembre": 11,
		"dic": 12, "diciembre": 12,
	},
	quests:       questsBy(func(q questTitles) string { return q.es }),
	publicThemes: themeSet("2", "3", "4", "5"),
	signIn:       "Entrar",
	moreGames:    "Más partidas",
}

var textsEn = &ScraperTexts{
	weekdays: map[string]uint8{
		"monday": 1, "tuesday": 2, "wednesday": 3, "thursday": 4, "friday": 5, "saturday": 6, "sunday": 7,
	},
	months: map[string]uint8{
		"jan": 1, "january": 1,
		"feb": 2, "february": 2,
		"mar": 3, "march": 3,
		"apr": 4, "april": 4,
		"may": 5,
		"jun": 6, "june": 6,
		"jul": 7, "july": 7,
		"aug": 8, "august": 8,
		"sep": 9, "september": 9,
		"oct": 10, "october": 10,
		"nov": 11, "november": 11,
		"dec": 12, "december": 12,
	},
	quests:       questsBy(func(q questTitles) string { return q.en }),
	publicThemes: themeSet("2", "3", "4", "5"),
	signIn:       "Login",
	moreGames:    "More games",
}
