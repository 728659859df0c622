package core

import "regexp"

var (
	cpfWeights1  = []int{10, 9, 8, 7, 6, 5, 4, 3, 2}
	cpfWeights2  = []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

	inepRegex = regexp.MustCompile(`^\d{8}$`)
	ufs       = map[string]bool{
		"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true, "DF": true, "ES": true, "GO": true,
		"MA": true, "MT": true, "MS": true, "MG": true, "PA": true, "PB": true, "PR": true, "PE": true, "PI": true,
		"RJ": true, "RN": true, "RS": true, "RO": true, "RR": true, "SC": true, "SP": true, "SE": true, "TO": true,
	}
	areaCodes = map[string]bool{
		"11": true, "12": true, "13": true, "14": true, "15": true, "16": true, "17": true, "18": true, "19": true,
		"21": true, "22": true, "24": true, "27": true, "28": true,
		"31": true, "32": true, "33": true, "34": true, "35": true, "37": true, "38": true,
		"41": true, "42": true, "43": true, "44": true, "45": true, "46": true, "47": true, "48": true, "49": true,
		"51": true, "53": true, "54": true, "55": true,
		"61": true, "62": true, "63": true, "64": true, "65": true, "66": true, "67": true, "68": true, "69": true,
		"71": true, "73": true, "74": true, "75": true, "77": true, "79": true,
		"81": true, "82": true, "83": true, "84": true, "85": true, "86": true, "87": true, "88": true, "89": true,
		"91": true, "92": true, "93": true, "94": true, "95": true, "96": true, "97": true, "98": true, "99": true,
	}
)

func allEqual(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

// checkDigit computes a mod-11 check digit of `digits` with the given weights.
func checkDigit(digits string, weights []int) byte {
	var sum int
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rest := sum % 11
	if rest < 2 {
		return '0'
	}
	return byte('0' + 11 - rest)
}

// ValidCPF reports whether `cpf` (formatted or not) carries 11 digits with valid check digits.
// Sequences of a single repeated digit are rejected.
func ValidCPF(cpf string) bool {
	d := OnlyDigits(cpf)
	if len(d) != 11 || allEqual(d) {
		return false
	}
	return d[9] == checkDigit(d, cpfWeights1) && d[10] == checkDigit(d, cpfWeights2)
}

// ValidCNPJ reports whether `cnpj` (formatted or not) carries 14 digits with valid check digits.
func ValidCNPJ(cnpj string) bool {
	d := OnlyDigits(cnpj)
	if len(d) != 14 || allEqual(d) {
		return false
	}
	return d[12] == checkDigit(d, cnpjWeights1) && d[13] == checkDigit(d, cnpjWeights2)
}

// FormatCPF renders 11 digits as 000.000.000-00. Anything else is returned as is.
func FormatCPF(cpf string) string {
	d := OnlyDigits(cpf)
	if len(d) != 11 {
		return cpf
	}
	return d[:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:]
}

// FormatCNPJ renders 14 digits as 00.000.000/0000-00. Anything else is returned as is.
func FormatCNPJ(cnpj string) string {
	d := OnlyDigits(cnpj)
	if len(d) != 14 {
		return cnpj
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

func ValidINEP(inep string) bool { return inepRegex.MatchString(inep) }

func ValidUF(uf string) bool { return ufs[uf] }

// ValidPhoneBR accepts 10 or 11 digits starting with a known area code.
func ValidPhoneBR(phone string) bool {
	d := OnlyDigits(phone)
	if len(d) != 10 && len(d) != 11 {
		return false
	}
	return areaCodes[d[:2]]
}
