package classify

// Polish returns the Polish table.
func Polish() *Language {
	return &Language{
		Code: "pl",
		Name: "Polski",
		Categories: []Category{
			{
				Name:        "invoice",
				Description: "Faktura handlowa",
				Keywords: []string{
					"faktura", "faktura vat", "faktura nr", "nr faktury", "fv", "fs",
					"sprzedawca", "nabywca", "kwota do zapłaty", "termin płatności",
					"data wystawienia", "data sprzedaży", "suma", "razem", "wartość brutto",
					"netto", "vat", "należność", "płatność",
				},
				Patterns: categoryPatterns(
					`faktura\s+(?:vat|nr|numer)?[:#\s]*[\w\-/]+`,
					`f(?:v|s)[/#\-]\s*\d+`,
					`nip\s*:?\s*\d{10}`,
					`kwota\s+do\s+zapłaty`,
					`termin\s+płatności`,
				),
			},
			{
				Name:        "receipt",
				Description: "Paragon sprzedaży",
				Keywords: []string{
					"paragon", "paragon fiskalny", "kwit", "dowód zakupu", "sklep", "suma",
					"wartość", "zapłacono", "reszta", "gotówka", "karta", "transakcja",
					"nr paragonu", "podziękowanie", "dziękujemy",
				},
				Patterns: categoryPatterns(
					`paragon\s+(?:fiskalny|nr)?`,
					`suma\s*:?\s*[\d,]+\s*(?:zł|PLN)`,
					`zapłacono\s*:?\s*[\d,]+`,
					`dziękujemy\s+za\s+zakup`,
				),
			},
			{
				Name:        "contract",
				Description: "Umowa prawna",
				Keywords: []string{
					"umowa", "kontrakt", "ugoda", "porozumienie", "warunki umowy", "strona",
					"strony", "niniejsza umowa", "zawiera", "zobowiązuje się", "postanowienia",
					"okres obowiązywania", "rozwiązanie", "wypowiedzenie", "podpis",
					"akceptacja", "przedmiot umowy",
				},
				Patterns: categoryPatterns(
					`umowa\s+(?:o\s+)?(?:pracę|zlecenie|dzieło|najmu|sprzedaży)`,
					`niniejsza\s+umowa`,
					`strona\s+(?:pierwsza|druga)`,
					`zobowiązuje\s+się\s+do`,
					`w\s+świadectwie\s+powyższego`,
				),
			},
			{
				Name:        "letter",
				Description: "List formalny lub biznesowy",
				Keywords: []string{
					"szanowny", "szanowna", "drogi", "droga", "uprzejmie", "z poważaniem",
					"łączę pozdrowienia", "serdeczne pozdrowienia", "z wyrazami szacunku",
					"do wiadomości", "w załączeniu", "informuję", "zwracam się",
				},
				Patterns: categoryPatterns(
					`szanown(?:y|a)\s+(?:pan|pani|państwo)`,
					`z\s+poważaniem`,
					`łączę\s+(?:wyrazy|pozdrowienia)`,
					`zwracam\s+się\s+z\s+(?:prośbą|zapytaniem)`,
				),
			},
			{
				Name:        "report",
				Description: "Raport biznesowy lub techniczny",
				Keywords: []string{
					"raport", "sprawozdanie", "zestawienie", "analiza", "podsumowanie", "wstęp",
					"wprowadzenie", "wnioski", "rekomendacje", "zakończenie", "kwartalny",
					"roczny", "miesięczny", "przegląd", "dane", "wyniki",
				},
				Patterns: categoryPatterns(
					`raport\s+(?:kwartalny|roczny|miesięczny)`,
					`sprawozdanie\s+(?:finansowe|zarządu)`,
					`(?:rozdział|punkt)\s+\d+`,
					`\d+\.\s+(?:wstęp|wnioski|zakończenie)`,
				),
			},
			{
				Name:        "form",
				Description: "Formularz lub wniosek",
				Keywords: []string{
					"formularz", "wniosek", "ankieta", "wypełnić", "proszę uzupełnić",
					"imię i nazwisko:", "adres:", "telefon:", "e-mail:", "podpis:", "data:",
					"wnioskodawca", "rejestracja", "zgłoszenie",
				},
				Patterns: categoryPatterns(
					`formularz\s+(?:wniosku|zgłoszeniowy|rejestracyjny)`,
					`(?:imię|nazwisko|adres|telefon)\s*:?\s*_{3,}`,
					`proszę\s+(?:wypełnić|uzupełnić)`,
					`\[\s*\]\s*(?:tak|nie|zgadzam się)`,
				),
			},
			{
				Name:        "memo",
				Description: "Notatka służbowa",
				Keywords: []string{
					"notatka", "notatka służbowa", "do:", "od:", "data:", "dotyczy:", "temat:",
					"dw:", "wewnętrzne", "poufne", "służbowe",
				},
				Patterns: categoryPatterns(
					`notatka\s+służbowa`,
					`do\s*:\s*\w+.*od\s*:\s*\w+`,
					`(?:data|dotyczy|temat)\s*:.*`,
				),
			},
			{
				Name:        "certificate",
				Description: "Certyfikat lub świadectwo",
				Keywords: []string{
					"certyfikat", "świadectwo", "zaświadczenie", "poświadcza", "nadaje",
					"przyznaje", "ukończenie", "osiągnięcie", "niniejszym potwierdza",
					"zaświadcza się", "akredytowany",
				},
				Patterns: categoryPatterns(
					`(?:certyfikat|świadectwo|zaświadczenie)\s+(?:ukończenia|udziału)`,
					`niniejszym\s+(?:potwierdza|zaświadcza)\s+(?:się|że)`,
					`nadaje\s+(?:tytuł|certyfikat)`,
				),
			},
			{
				Name:        "statement",
				Description: "Wyciąg finansowy lub bankowy",
				Keywords: []string{
					"wyciąg", "wyciąg z konta", "wyciąg bankowy", "zestawienie", "saldo",
					"transakcje", "operacje", "saldo początkowe", "saldo końcowe", "rachunek",
					"historia operacji",
				},
				Patterns: categoryPatterns(
					`wyciąg\s+(?:z\s+konta|bankowy)`,
					`saldo\s+(?:początkowe|końcowe|na\s+dzień)`,
					`(?:historia|zestawienie)\s+(?:operacji|transakcji)`,
				),
			},
		},

		DayFirst: true,
		MonthNames: []string{
			"stycznia", "lutego", "marca", "kwietnia", "maja", "czerwca",
			"lipca", "sierpnia", "września", "października", "listopada", "grudnia",
		},
		MonthAbbreviations: []string{
			"sty", "lut", "mar", "kwi", "maj", "cze", "lip", "sie", "wrz", "paź", "lis", "gru",
		},
		CurrencySymbols: []string{"zł", "PLN"},

		PhonePatterns: exactPatterns(
			`\+48\s*\d{3}[\s-]?\d{3}[\s-]?\d{3}\b`,
			`\b\d{3}[\s-]\d{3}[\s-]\d{3}\b`,
		),
		PostalCodePatterns: exactPatterns(
			`\b\d{2}-\d{3}\b`,
		),
		InvoicePatterns: fieldPatterns(
			`\b(?:faktura(?:\s+vat)?|fakt|fv|fs)(?:\s+(?:nr\.?|numer))?\s*[#:]?\s*([A-Z0-9][A-Z0-9/-]*)`,
		),
		POPatterns: fieldPatterns(
			`\bzam(?:ówienie|\.)?(?:\s+(?:nr\.?|numer))?\s*[#:]?\s*([A-Z0-9][A-Z0-9/-]*)`,
		),
		TaxIDPatterns: fieldPatterns(
			`\bNIP\s*:?\s*(\d{3}-\d{3}-\d{2}-\d{2}|\d{3}-\d{2}-\d{2}-\d{3}|\d{10})\b`,
		),
	}
}
