package services

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/banksec/backend/internal/models"
)

const (
	MessagePacs008 = "pacs.008.001.08"
	MessagePacs002 = "pacs.002.001.08"
)

type ISO20022Export struct {
	TransferID  string `json:"transferId"`
	MessageType string `json:"messageType"`
	XML         string `json:"xml"`
}

// ISO20022Service renders ledger transfers as pacs messages for
// downstream reconciliation.
type ISO20022Service struct {
	currency string
	bic      string
	now      func() time.Time
}

func NewISO20022Service(currency, bic string) *ISO20022Service {
	if currency == "" {
		currency = "USD"
	}
	if bic == "" {
		bic = "BANKSECXXXX"
	}
	return &ISO20022Service{currency: currency, bic: bic, now: time.Now}
}

// Export renders a completed transfer as pacs.008 and any other
// outcome as a pacs.002 status report.
func (iso *ISO20022Service) Export(t *models.Transfer) (*ISO20022Export, error) {
	var (
		doc     interface{}
		msgType string
	)
	if t.Status == models.TransferCompleted {
		doc, msgType = iso.CreatePacs008(t), MessagePacs008
	} else {
		doc, msgType = iso.CreatePacs002(t), MessagePacs002
	}

	out, err := iso.ConvertToXML(doc)
	if err != nil {
		return nil, err
	}
	return &ISO20022Export{TransferID: t.ID, MessageType: msgType, XML: out}, nil
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message
func (iso *ISO20022Service) CreatePacs008(t *models.Transfer) *pacs_v08.FIToFICustomerCreditTransferV08 {
	creDtTm := iso.now()
	settlementDate := creDtTm
	if t.CompletedAt != nil {
		settlementDate = *t.CompletedAt
	}
	amount := pacs_v08.ActiveCurrencyAndAmount{
		Ccy:   common.ActiveCurrencyCode(iso.currency),
		Value: minorToMajor(t.Amount),
	}
	bic := common.BICFIDec2014Identifier(iso.bic)

	return &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:             common.Max35Text(shortID(uuid.New().String())),
			CreDtTm:           common.ISODateTime(creDtTm),
			NbOfTxs:           "1",
			TtlIntrBkSttlmAmt: &amount,
			IntrBkSttlmDt:     (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "INDA", // settled on the instructing agent's books
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    max35(t.SettlementRef),
					EndToEndId: common.Max35Text(shortID(t.ID)),
					TxId:       max35(t.SettlementRef),
				},
				IntrBkSttlmAmt: amount,
				IntrBkSttlmDt:  (*common.ISODate)(&settlementDate),
				ChrgBr:         "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{BICFI: &bic},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: max140(t.From),
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{BICFI: &bic},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: max140(t.To),
				},
			},
		},
	}
}

// CreatePacs002 creates a pacs.002 payment status report
func (iso *ISO20022Service) CreatePacs002(t *models.Transfer) *pacs_v08.FIToFIPaymentStatusReportV08 {
	status := pacs_v08.ExternalPaymentTransactionStatus1Code(transferStatusCode(t.Status))

	return &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(shortID(uuid.New().String())),
			CreDtTm: common.ISODateTime(iso.now()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlEndToEndId: max35(shortID(t.ID)),
				OrgnlTxId:       max35(t.SettlementRef),
				TxSts:           &status,
			},
		},
	}
}

// ConvertToXML converts ISO20022 document to XML string
func (iso *ISO20022Service) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func transferStatusCode(s models.TransferStatus) string {
	switch s {
	case models.TransferCompleted:
		return "ACSC"
	case models.TransferRejected, models.TransferFailed:
		return "RJCT"
	default:
		return "PDNG"
	}
}

func minorToMajor(amount int64) float64 {
	return float64(amount) / 100
}

func shortID(id string) string {
	if len(id) > 35 {
		return id[:35]
	}
	return id
}

func max35(s string) *common.Max35Text {
	if s == "" {
		return nil
	}
	v := common.Max35Text(shortID(s))
	return &v
}

func max140(s string) *common.Max140Text {
	v := common.Max140Text(s)
	return &v
}
