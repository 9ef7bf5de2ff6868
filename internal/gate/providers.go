package gate

// freeProviders maps webmail domains to their provider name.
var freeProviders = map[string]string{
	"gmail.com":      "Gmail",
	"googlemail.com": "Gmail",
	"yahoo.com":      "Yahoo",
	"yahoo.fr":       "Yahoo",
	"ymail.com":      "Yahoo",
	"hotmail.com":    "Outlook",
	"hotmail.fr":     "Outlook",
	"outlook.com":    "Outlook",
	"outlook.fr":     "Outlook",
	"live.com":       "Outlook",
	"live.fr":        "Outlook",
	"msn.com":        "Outlook",
	"icloud.com":     "iCloud",
	"me.com":         "iCloud",
	"mac.com":        "iCloud",
	"aol.com":        "AOL",
	"protonmail.com": "Proton",
	"proton.me":      "Proton",
	"tutanota.com":   "Tutanota",
	"gmx.com":        "GMX",
	"gmx.fr":         "GMX",
	"gmx.de":         "GMX",
	"web.de":         "Web.de",
	"mail.com":       "Mail.com",
	"yandex.com":     "Yandex",
	"yandex.ru":      "Yandex",
	"zoho.com":       "Zoho",
	"orange.fr":      "Orange",
	"wanadoo.fr":     "Orange",
	"free.fr":        "Free",
	"sfr.fr":         "SFR",
	"neuf.fr":        "SFR",
	"laposte.net":    "La Poste",
	"bbox.fr":        "Bouygues",
}

// disposableDomains are throwaway mailbox services.
var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"guerrillamail.net": true,
	"10minutemail.com":  true,
	"temp-mail.org":     true,
	"tempmail.com":      true,
	"yopmail.com":       true,
	"yopmail.fr":        true,
	"trashmail.com":     true,
	"throwawaymail.com": true,
	"getnada.com":       true,
	"maildrop.cc":       true,
	"sharklasers.com":   true,
	"dispostable.com":   true,
	"fakeinbox.com":     true,
	"jetable.org":       true,
	"mailnesia.com":     true,
	"mohmal.com":        true,
}

// roleLocals are local parts that address a function rather than a person.
var roleLocals = map[string]bool{
	"admin": true, "administrateur": true, "accueil": true, "billing": true,
	"bonjour": true, "booking": true, "careers": true, "commercial": true,
	"compta": true, "comptabilite": true, "contact": true, "direction": true,
	"enquiries": true, "facturation": true, "hello": true, "help": true,
	"hr": true, "info": true, "infos": true, "jobs": true, "marketing": true,
	"office": true, "press": true, "presse": true, "recrutement": true,
	"rh": true, "sales": true, "secretariat": true, "service": true,
	"support": true, "team": true, "webmaster": true, "postmaster": true,
	"abuse": true, "devis": true, "reservation": true,
}

// noReplyLocals never receive mail.
var noReplyLocals = map[string]bool{
	"noreply": true, "no-reply": true, "no_reply": true, "donotreply": true,
	"do-not-reply": true, "nepasrepondre": true, "ne-pas-repondre": true,
	"mailer-daemon": true,
}
