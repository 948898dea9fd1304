package classify

// English returns the English table.
func English() *Language {
	return &Language{
		Code: "en",
		Name: "English",
		Categories: []Category{
			{
				Name:        "invoice",
				Description: "Commercial invoice or bill",
				Keywords: []string{
					"invoice", "bill to", "invoice number", "invoice #", "inv #", "inv-",
					"amount due", "payment due", "payment terms", "due date", "bill date",
					"invoice date", "total due", "balance due", "remittance",
				},
				Patterns: categoryPatterns(
					`invoice\s*(?:number|#|no\.?)[:#\s]*[\w\-]+`,
					`inv[-#]\s*\d+`,
					`amount\s+due\s*:?\s*[$€£]\s*[\d,]+\.?\d*`,
					`payment\s+terms`,
					`net\s+\d+\s+days`,
				),
			},
			{
				Name:        "receipt",
				Description: "Sales or payment receipt",
				Keywords: []string{
					"receipt", "store", "thank you", "subtotal", "tax", "change", "cash",
					"credit", "debit", "payment received", "paid", "transaction",
				},
				Patterns: categoryPatterns(
					`receipt\s*(?:number|#|no\.?)?`,
					`thank\s+you\s+for\s+(?:your|shopping)`,
					`(?:sub)?total\s*:?\s*[$€£]\s*[\d,]+\.?\d*`,
					`change\s*:?\s*[$€£]\s*[\d,]+\.?\d*`,
				),
			},
			{
				Name:        "contract",
				Description: "Legal contract or agreement",
				Keywords: []string{
					"contract", "agreement", "terms and conditions", "this agreement", "party",
					"parties", "whereas", "hereby", "entered into", "binding", "executed",
					"effective date", "term", "terminate", "termination",
				},
				Patterns: categoryPatterns(
					`(?:employment|service|sales|lease)\s+(?:contract|agreement)`,
					`this\s+agreement\s+is\s+(?:made|entered)`,
					`terms\s+and\s+conditions`,
					`party\s+of\s+the\s+(?:first|second)\s+part`,
					`whereas.*(?:agrees?|undertakes?)`,
				),
			},
			{
				Name:        "letter",
				Description: "Formal or business letter",
				Keywords: []string{
					"dear", "sincerely", "regards", "yours truly", "respectfully",
					"to whom it may concern", "best regards", "kind regards", "yours faithfully",
				},
				Patterns: categoryPatterns(
					`dear\s+(?:mr|mrs|ms|dr|prof)\.?\s+\w+`,
					`(?:sincerely|regards|respectfully)\s*,?\s*$`,
					`yours\s+(?:truly|faithfully|sincerely)`,
					`to\s+whom\s+it\s+may\s+concern`,
				),
			},
			{
				Name:        "report",
				Description: "Business or technical report",
				Keywords: []string{
					"report", "executive summary", "introduction", "findings", "recommendations",
					"conclusion", "analysis", "quarterly", "annual", "monthly", "summary",
					"overview", "background",
				},
				Patterns: categoryPatterns(
					`(?:quarterly|annual|monthly|weekly)\s+report`,
					`executive\s+summary`,
					`(?:section|chapter)\s+\d+`,
					`\d+\.\s+(?:introduction|findings|conclusion)`,
				),
			},
			{
				Name:        "form",
				Description: "Application or registration form",
				Keywords: []string{
					"application form", "form", "please complete", "fill in", "name:",
					"address:", "phone:", "email:", "signature:", "date:", "applicant",
					"registration",
				},
				Patterns: categoryPatterns(
					`(?:application|registration)\s+form`,
					`(?:name|address|phone|email)\s*:?\s*_{3,}`,
					`please\s+(?:complete|fill\s+(?:in|out))`,
					`\[\s*\]\s*(?:yes|no|agree|disagree)`,
				),
			},
			{
				Name:        "memo",
				Description: "Internal memorandum",
				Keywords: []string{
					"memorandum", "memo", "to:", "from:", "date:", "re:", "subject:", "cc:",
					"internal", "confidential",
				},
				Patterns: categoryPatterns(
					`(?:memorandum|memo)\s*$`,
					`to\s*:\s*\w+.*from\s*:\s*\w+`,
					`(?:date|re|subject)\s*:.*`,
				),
			},
			{
				Name:        "certificate",
				Description: "Certificate or credential",
				Keywords: []string{
					"certificate", "certify", "certification", "awarded", "completion",
					"achievement", "hereby certifies", "this certifies", "accredited",
				},
				Patterns: categoryPatterns(
					`certificate\s+of\s+(?:completion|achievement|attendance)`,
					`(?:this|hereby)\s+certifies\s+that`,
					`awarded\s+(?:to|on)`,
				),
			},
			{
				Name:        "statement",
				Description: "Financial or account statement",
				Keywords: []string{
					"statement", "account statement", "bank statement", "credit card statement",
					"balance", "transactions", "beginning balance", "ending balance",
				},
				Patterns: categoryPatterns(
					`(?:account|bank|credit\s+card)\s+statement`,
					`(?:beginning|ending|closing)\s+balance`,
					`statement\s+(?:period|date)`,
				),
			},
		},

		MonthNames: []string{
			"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December",
		},
		MonthAbbreviations: []string{
			"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
		},
		CurrencySymbols: []string{"$", "€", "£", "¥", "₹", "USD", "EUR", "GBP", "CAD", "AUD"},

		PhonePatterns: exactPatterns(
			`\+\d{1,3}[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`,
			`\(\d{3}\)\s?\d{3}[-.\s]\d{4}\b`,
			`\b\d{3}[-.]\d{3}[-.]\d{4}\b`,
		),
		PostalCodePatterns: exactPatterns(
			`\b\d{5}-\d{4}\b`,
			`\b[A-Z]{2}\s+(\d{5})\b`,
			`\b[A-Z]\d[A-Z]\s?\d[A-Z]\d\b`,
		),
		InvoicePatterns: fieldPatterns(
			`\binv(?:oice)?(?:\s+(?:number|no\.?))?\s*[#:]?\s*([A-Z0-9][A-Z0-9/-]*)`,
		),
		POPatterns: fieldPatterns(
			`\b(?:purchase\s+order|p\.?o\.?)(?:\s+(?:number|no\.?))?\s*[#:]?\s*([A-Z0-9][A-Z0-9/-]*)`,
		),
		TaxIDPatterns: fieldPatterns(
			`\b(?:tax\s+id|tin|ein)\s*:?\s*(\d{2}-\d{7})\b`,
		),
	}
}
