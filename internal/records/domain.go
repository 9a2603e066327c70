package records

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RecordType names one target table.
type RecordType string

const (
	Customer    RecordType = "customer"
	Policy      RecordType = "policy"
	Transaction RecordType = "transaction"
	Ticket      RecordType = "ticket"
)

// RecordTypes lists the target tables in canonical order.
var RecordTypes = []RecordType{Customer, Policy, Transaction, Ticket}

// TableSchema lists the columns of a target table and which are mandatory.
type TableSchema struct {
	Fields   []string `json:"fields"`
	Required []string `json:"required"`
}

// Domain is the static description of the documents being processed. It is
// built once and passed to the stages that need it.
type Domain struct {
	SectionTypes        []string                   `json:"section_types"`
	CurrencyMap         map[string]string          `json:"currency_map"`
	Tables              map[RecordType]TableSchema `json:"tables"`
	ConfidenceThreshold float64                    `json:"confidence_threshold"`
}

// DefaultDomain returns the Italian insurance back-office domain.
func DefaultDomain() Domain {
	return Domain{
		SectionTypes: []string{"ANAGRAFICA", "AMMINISTRATIVI", "TRANSAZIONI", "TICKET", "ALTRO"},
		CurrencyMap: map[string]string{
			"€": "EUR", "Euro": "EUR", "EUR": "EUR", "euro": "EUR",
			"dollar": "USD", "$": "USD", "USD": "USD",
			"£": "GBP", "GBP": "GBP",
		},
		Tables: map[RecordType]TableSchema{
			Customer: {
				Fields: []string{
					"nome", "cognome", "ragione_sociale", "codice_fiscale", "partita_iva",
					"email", "telefono", "cellulare", "indirizzo", "citta", "cap",
					"provincia", "nazione", "data_nascita", "luogo_nascita",
				},
				Required: []string{"nome", "cognome", "codice_fiscale"},
			},
			Policy: {
				Fields: []string{
					"polizza_numero", "tipo", "stato", "data_decorrenza", "data_scadenza",
					"premio", "premio_annuale", "franchigia", "massimale", "compagnia",
					"agente", "rata_pagamento",
				},
				Required: []string{"polizza_numero", "tipo"},
			},
			Transaction: {
				Fields: []string{
					"transazione_id", "data", "importo", "tipo", "descrizione",
					"metodo_pagamento", "riferimento_polizza", "stato",
				},
				Required: []string{"data", "importo", "tipo"},
			},
			Ticket: {
				Fields: []string{
					"ticket_id", "data_apertura", "data_chiusura", "stato", "priorita",
					"categoria", "descrizione", "risoluzione", "assegnato_a",
				},
				Required: []string{"ticket_id", "stato"},
			},
		},
		ConfidenceThreshold: 0.7,
	}
}

// NormalizeCurrency maps a currency symbol or name to its ISO code.
func (d Domain) NormalizeCurrency(value string) (string, bool) {
	code, ok := d.CurrencyMap[strings.TrimSpace(value)]
	return code, ok
}

// MissingRequired returns the required columns absent or blank in fields.
func (d Domain) MissingRequired(recordType RecordType, fields map[string]any) []string {
	table, ok := d.Tables[recordType]
	if !ok {
		return nil
	}
	var missing []string
	for _, name := range table.Required {
		value, present := fields[name]
		if !present || value == nil {
			missing = append(missing, name)
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// DeterministicID derives a stable 16-hex-character identifier from data.
func DeterministicID(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:16]
}

// SourceRef builds a source reference, truncating the snippet to 100 runes.
func SourceRef(page int, snippet string) SourceReference {
	runes := []rune(snippet)
	if len(runes) > 100 {
		snippet = string(runes[:100])
	}
	return SourceReference{Page: page, Snippet: snippet}
}
