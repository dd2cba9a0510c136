package tariff

// catalogItems is the seeded tariff excerpt covering the positions the
// practice bills most. The full catalogs run to tens of thousands of
// positions and are licensed; deployments extend this list from their own
// tariff subscription.
var catalogItems = []Item{
	// Medical services (type 001), chapter 00: consultations.
	{Code: "00.0010", Name: "Consultation, first 5 min (basic consultation)", TaxPoints: 18.50, TariffType: TypeMedical, Chapter: "00", Active: true},
	{Code: "00.0020", Name: "Consultation, every additional 5 min", TaxPoints: 17.82, TariffType: TypeMedical, Chapter: "00", Active: true},
	{Code: "00.0030", Name: "Consultation, last 5 min (consultation surcharge)", TaxPoints: 9.25, TariffType: TypeMedical, Chapter: "00", Active: true},
	{Code: "00.0060", Name: "Specialist consultation surcharge, first 5 min", TaxPoints: 10.40, TariffType: TypeMedical, Chapter: "00", Active: true},
	{Code: "00.0110", Name: "Telephone consultation by the specialist, first 5 min", TaxPoints: 18.50, TariffType: TypeMedical, Chapter: "00", Active: true},
	{Code: "00.0120", Name: "Telephone consultation by the specialist, every additional 5 min", TaxPoints: 17.82, TariffType: TypeMedical, Chapter: "00", Active: true},
	{Code: "00.0415", Name: "Detailed status assessment by the specialist", TaxPoints: 38.95, TariffType: TypeMedical, Chapter: "00", Active: true},
	{Code: "00.0510", Name: "Emergency inconvenience allowance", TaxPoints: 180.00, TariffType: TypeMedical, Chapter: "00", Active: true},
	{Code: "00.1370", Name: "Medical report requested by insurer", TaxPoints: 63.70, TariffType: TypeMedical, Chapter: "00", Active: true},
	{Code: "00.2285", Name: "Consultation in absence of the patient, per 5 min", TaxPoints: 18.50, TariffType: TypeMedical, Chapter: "00", Active: true},

	// Medical services, chapter 04: skin and soft tissue.
	{Code: "04.0015", Name: "Excision of superficial skin lesion, face", TaxPoints: 92.43, TariffType: TypeMedical, Chapter: "04", Active: true},
	{Code: "04.0060", Name: "Wound care, simple, as sole service", TaxPoints: 27.71, TariffType: TypeMedical, Chapter: "04", Active: true},
	{Code: "04.1110", Name: "Suture of skin wound up to 5 cm", TaxPoints: 66.80, TariffType: TypeMedical, Chapter: "04", Active: true},

	// Medical services, chapter 39: imaging.
	{Code: "39.0020", Name: "X-ray, thorax, two planes", TaxPoints: 87.25, TariffType: TypeMedical, Chapter: "39", Active: true},
	{Code: "39.3005", Name: "Ultrasound, abdomen, complete", TaxPoints: 105.60, TariffType: TypeMedical, Chapter: "39", Active: true},

	// Retired position kept for historical invoice display.
	{Code: "00.0140", Name: "Consultation surcharge for people over 75 (retired)", TaxPoints: 9.25, TariffType: TypeMedical, Chapter: "00", Active: false},

	// Analysis list (type 590), nationally uniform tax-point value.
	{Code: "1371.00", Name: "Blood count, complete (hemogram V)", TaxPoints: 8.50, TariffType: TypeAnalysis, Chapter: "H", Active: true},
	{Code: "1245.00", Name: "CRP, quantitative", TaxPoints: 9.00, TariffType: TypeAnalysis, Chapter: "C", Active: true},
	{Code: "1734.00", Name: "Glucose, plasma", TaxPoints: 2.30, TariffType: TypeAnalysis, Chapter: "C", Active: true},
	{Code: "1416.00", Name: "Creatinine, serum", TaxPoints: 2.50, TariffType: TypeAnalysis, Chapter: "C", Active: true},
	{Code: "1598.00", Name: "Ferritin", TaxPoints: 12.60, TariffType: TypeAnalysis, Chapter: "C", Active: true},
	{Code: "3334.00", Name: "TSH (thyrotropin)", TaxPoints: 13.00, TariffType: TypeAnalysis, Chapter: "I", Active: true},
	{Code: "1065.00", Name: "Urine status, test strip", TaxPoints: 3.00, TariffType: TypeAnalysis, Chapter: "U", Active: true},
}

// cantonTaxPointValues maps canton code to the CHF value of one tax point
// for medical services under mandatory insurance. The "CH" entry is the
// nationally uniform value used by the analysis list.
var cantonTaxPointValues = map[string]float64{
	"AG": 0.91,
	"AI": 0.86,
	"AR": 0.86,
	"BE": 0.86,
	"BL": 0.91,
	"BS": 0.91,
	"FR": 0.91,
	"GE": 0.96,
	"GL": 0.86,
	"GR": 0.86,
	"JU": 0.97,
	"LU": 0.82,
	"NE": 0.97,
	"NW": 0.82,
	"OW": 0.82,
	"SG": 0.83,
	"SH": 0.87,
	"SO": 0.93,
	"SZ": 0.82,
	"TG": 0.83,
	"TI": 0.93,
	"UR": 0.82,
	"VD": 0.96,
	"VS": 0.89,
	"ZG": 0.82,
	"ZH": 0.89,

	"CH": 1.00,
}
