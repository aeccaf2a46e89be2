package dinoparc

import (
	"regexp"

	"github.com/eternaltwin/etwin/internal/model"
)

// scraperLocale はサーバーの言語ごとに異なる表示文字列の辞書。
type scraperLocale struct {
	locationNames       map[string]model.DinoparcLocationID
	skillNames          map[string]model.DinoparcSkill
	inTournamentPattern *regexp.Regexp
}

type locationNames struct {
	fr, en, es string
}

// locations は場所IDの順に並んだ場所名。
var locations = [...]locationNames{
	{"Dinoville", "Dinotown", "Dinovilla"},
	{"Caverne d'Irma", "Sparky's Cave", "Caverna de Lola"},
	{"Clairière", "Clearing in the Wood", "Claro del Bosque"},
	{"Dinoplage", "Dinobeach", "Dinoplaya"},
	{"Barrage Routier", "Check Point", "Barrera de Caminos"},
	{"Falaises de l'Ermite", "Hermitage Cliffs", "Acantilados de la Ermita"},
	{"Mont Dino", "Mount Dinoz", "Monte Dino"},
	{"Porte de Granit", "Granite Door", "Puerta de Granito"},
	{"Chemin des Gredins", "Bandits Road", "Camino de los Bribones"},
	{"Forêt Millénaire", "Ancient Wood", "Bosque Milenario"},
	{"Temple Bouddhiste", "Buddhist Temple", "Templo Budista"},
	{"Port de la Prune", "Port of Saint Berry", "Puerto de Santa Moría"},
	{"L'Ile de la Pitié", "Pity Island", "Isla de la Piedad"},
	{"Ruines Mayinca", "Mayinca Ruins", "Ruinas Mayinca"},
	{"Crédit Arboricole", "Institute of Olimpic Credit", "Instituto de Crédito Olímpico"},
	{"Bazar de l'île de Jazz", "Jazz island Market", "Mercado de la Isla de Jazz"},
	{"Marais collant", "Sticky Swamp", "Pantano Pegajoso"},
	{"Jungle des Ouistitis", "The Wistitis Jungle", "Jungla de los Wistitis"},
	{"Bordeciel", "Bordesky", "Burdecielo"},
	{"Source chantante", "Singing Fountain", "Fuente Cantante"},
	{"Caverne de l'anomalie", "Anomaly Cavern", "Caverna de la Anomalí"},
	{"Hutte du vieux sage", "Wise Old Man's shack", "Casucha del viejo sabio"},
	{"Cratère du grand Tout-Chaud", "Crater of the Great Lord Burn-All", "Cráter del Gran Señor-Todo-Quema"},
}

type skillNames struct {
	skill      model.DinoparcSkill
	fr, en, es string
}

// skills の英語名が空の技能は英語サーバーに存在しない。
var skills = [...]skillNames{
	{model.DinoparcSkillDexterity, "Agilité", "Dexterity", "Agilidad"},
	{model.DinoparcSkillIntelligence, "Intelligence", "Intelligence", "Inteligencia"},
	{model.DinoparcSkillPerception, "Perception", "Perception", "Percepción"},
	{model.DinoparcSkillStamina, "Endurance", "Stamina", "Resistencia"},
	{model.DinoparcSkillStrength, "Force", "Strength", "Fuerza"},
	{model.DinoparcSkillDig, "Fouiller", "Dig", "Excavar"},
	{model.DinoparcSkillMedicine, "Medecine", "Medicine", "Medicina"},
	{model.DinoparcSkillSwim, "Natation", "Swim", "Natación"},
	{model.DinoparcSkillCamouflage, "Camouflage", "Camouflage", "Camuflaje"},
	{model.DinoparcSkillClimb, "Escalade", "Climb", "Escalada"},
	{model.DinoparcSkillMartialArts, "Arts Martiaux", "Martial Arts", "Artes Marciales"},
	{model.DinoparcSkillSteal, "Voler", "Steal", "Robar"},
	{model.DinoparcSkillProvoke, "Taunt", "Provoke", "Provocar"},
	{model.DinoparcSkillBargain, "Commerce", "Bargain", "Comercio"},
	{model.DinoparcSkillNavigation, "Navigation", "Navigation", "Navegación"},
	{model.DinoparcSkillRun, "Course", "Run", "Correr"},
	{model.DinoparcSkillSurvival, "Survie", "Survival", "Supervivencia"},
	{model.DinoparcSkillStrategy, "Stratégie", "Strategy", "Estrategia"},
	{model.DinoparcSkillMusic, "Musique", "Music", "Música"},
	{model.DinoparcSkillJump, "Saut", "Jump", "Salto"},
	{model.DinoparcSkillCook, "Cuisine", "Cook", "Cocina"},
	{model.DinoparcSkillLuck, "Chance", "Luck", "Suerte"},
	{model.DinoparcSkillCounterattack, "Contre Attaque", "Counterattack", "Contraataque"},
	{model.DinoparcSkillJuggle, "Rock", "Juggle", "Malabarismos"},
	{model.DinoparcSkillFireProtection, "Protection du Feu", "Fire Protection", "Protección del Fuego"},
	{model.DinoparcSkillFireApprentice, "Apprentis Feu", "Fire Apprentice", "Aprendiz de Fuego"},
	{model.DinoparcSkillEarthApprentice, "Apprentis Terre", "Earth Apprentice", "Aprendiz de Tierra"},
	{model.DinoparcSkillWaterApprentice, "Apprentis Eau", "Water Apprentice", "Aprendiz de Agua"},
	{model.DinoparcSkillThunderApprentice, "Apprentis Foudre", "Thunder Apprentice", "Aprendiz de Rayo"},
	{model.DinoparcSkillShadowPower, "Pouvoir Sombre", "Shadow Power", "Poder Sombra"},
	{model.DinoparcSkillTotemThief, "Voleur de Totem", "", "Ladrón de tótem"},
	{model.DinoparcSkillSaboteur, "Saboteur", "", "Sabotaje"},
	{model.DinoparcSkillSpy, "Espion", "", "Espía"},
	{model.DinoparcSkillMercenary, "Mercenaire", "", "Mercenario"},
}

var locales = map[model.DinoparcServer]*scraperLocale{
	model.DinoparcServerFr: newLocale(
		func(l locationNames) string { return l.fr },
		func(s skillNames) string { return s.fr },
		`participe actuellement au Tournoi de ce lieu`,
	),
	model.DinoparcServerEn: newLocale(
		func(l locationNames) string { return l.en },
		func(s skillNames) string { return s.en },
		`is currently participating in the Tournament in this location`,
	),
	model.DinoparcServerSp: newLocale(
		func(l locationNames) string { return l.es },
		func(s skillNames) string { return s.es },
		`participa actualmente en el Torneo de este lugar`,
	),
}

func newLocale(location func(locationNames) string, skill func(skillNames) string, tournament string) *scraperLocale {
	l := &scraperLocale{
		locationNames:       make(map[string]model.DinoparcLocationID, len(locations)),
		skillNames:          make(map[string]model.DinoparcSkill, len(skills)),
		inTournamentPattern: regexp.MustCompile(tournament),
	}
	for id, names := range locations {
		l.locationNames[location(names)] = model.DinoparcLocationID(id)
	}
	for _, names := range skills {
		if name := skill(names); name != "" {
			l.skillNames[name] = names.skill
		}
	}
	return l
}

func localeFor(server model.DinoparcServer) *scraperLocale {
	return locales[server]
}
