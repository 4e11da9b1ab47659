package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/photosentry/photosentry/internal/domain/scanning"
)

func TestRefineDocumentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		wantLabel string
		wantOK    bool
	}{
		{
			name:      "grouped 16 digit card number",
			text:      "4111 1111 1111 1111",
			wantLabel: scanning.LabelCreditCard,
			wantOK:    true,
		},
		{
			name:      "ungrouped 13 digit card number",
			text:      "4222222222222",
			wantLabel: scanning.LabelCreditCard,
			wantOK:    true,
		},
		{
			name:      "brand plus valid thru keywords",
			text:      "VISA\nVALID THRU 12/27",
			wantLabel: scanning.LabelCreditCard,
			wantOK:    true,
		},
		{
			name:      "expiry pattern with valid marker",
			text:      "valid 09/26",
			wantLabel: scanning.LabelCreditCard,
			wantOK:    true,
		},
		{
			name:      "passport keywords",
			text:      "PASSPORT\nSurname: DOE\nNationality: UTOPIAN\nDate of birth: 01 JAN 1990",
			wantLabel: scanning.LabelPassport,
			wantOK:    true,
		},
		{
			name:      "passport MRZ prefix",
			text:      "something\nP<UTODOE<<JOHN<<<<<<<<<<<<<<<<",
			wantLabel: scanning.LabelPassport,
			wantOK:    true,
		},
		{
			name:      "driver license families",
			text:      "DRIVER LICENSE\nDOB 01/01/1990\nHEIGHT 5-10",
			wantLabel: LabelGovernmentID,
			wantOK:    true,
		},
		{
			name:      "card number bounded by prose",
			text:      "total charged to 4111-1111-1111-1111 yesterday",
			wantLabel: scanning.LabelCreditCard,
			wantOK:    true,
		},
		{
			name:   "twenty digit serial number",
			text:   "serial 12345678901234567890",
			wantOK: false,
		},
		{
			name:   "long imei style digit run",
			text:   "imei 3548700112345671234567",
			wantOK: false,
		},
		{
			name:   "twelve digits are too short",
			text:   "ref 123456789012",
			wantOK: false,
		},
		{
			name:   "two passport keywords are not enough",
			text:   "surname and nationality on a form",
			wantOK: false,
		},
		{
			name:   "plain prose",
			text:   "a photo of a receipt from lunch",
			wantOK: false,
		},
		{
			name:   "empty text",
			text:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			label, ok := RefineDocumentType(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}
