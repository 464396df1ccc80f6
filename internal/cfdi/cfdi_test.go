package cfdi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

const cfdi40 = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital"
  Version="4.0" Fecha="2024-03-05T12:30:00" SubTotal="100.00" Total="116.00" FormaPago="04" Moneda="MXN">
  <cfdi:Emisor Rfc="SEM950215S98" Nombre="SUPERMERCADOS EJEMPLO SA DE CV" RegimenFiscal="601"/>
  <cfdi:Receptor Rfc="XAXX010101000" Nombre="PUBLICO EN GENERAL"/>
  <cfdi:Conceptos>
    <cfdi:Concepto ClaveProdServ="50202306" Cantidad="2" Descripcion="Agua 1L" ValorUnitario="25.00" Importe="50.00"/>
    <cfdi:Concepto ClaveProdServ="50181900" Cantidad="1" Descripcion="Pan" ValorUnitario="50.00" Importe="50.00"/>
  </cfdi:Conceptos>
  <cfdi:Impuestos TotalImpuestosTrasladados="16.00"/>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital UUID="6f1e6b2c-3c0b-4d4e-9b7a-2c1f0e9d8a7b" RfcProvCertif="SPR190613I52"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`

func byField(cands []entity.FieldCandidate) map[entity.Field]string {
	out := map[entity.Field]string{}
	for _, c := range cands {
		out[c.Field] = c.Value
	}
	return out
}

func TestAcquire_CFDI40(t *testing.T) {
	acq, err := Acquire([]byte(cfdi40))
	require.NoError(t, err)
	assert.Equal(t, entity.AcquiredFromXML, acq.Method)
	assert.Empty(t, acq.Warnings)

	got := byField(acq.Structured)
	assert.Equal(t, "6f1e6b2c-3c0b-4d4e-9b7a-2c1f0e9d8a7b", got[entity.FieldUUID])
	assert.Equal(t, "SEM950215S98", got[entity.FieldRFCEmisor])
	assert.Equal(t, "XAXX010101000", got[entity.FieldRFCReceptor])
	assert.Equal(t, "116.00", got[entity.FieldTotal])
	assert.Equal(t, "100.00", got[entity.FieldSubtotal])
	assert.Equal(t, "16.00", got[entity.FieldIVA])
	assert.Equal(t, "2024-03-05T12:30:00", got[entity.FieldFecha])
	assert.Equal(t, "04", got[entity.FieldFormaPago])
	assert.Equal(t, "SUPERMERCADOS EJEMPLO SA DE CV", got[entity.FieldEstablecimiento])

	for _, c := range acq.Structured {
		assert.Equal(t, entity.MethodXMLAttr, c.Method)
		assert.Equal(t, entity.PriorityXMLAttr, c.Priority)
	}

	require.Len(t, acq.Conceptos, 2)
	assert.Equal(t, "Agua 1L", acq.Conceptos[0].Descripcion)
	assert.Equal(t, "50.00", acq.Conceptos[0].Importe.String())
	assert.Equal(t, "2", acq.Conceptos[0].Cantidad.String())
}

func TestAcquire_Legacy32AndLatin1(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<cfdi:Comprobante xmlns:cfdi=\"http://www.sat.gob.mx/cfd/3\" version=\"3.2\" fecha=\"2016-01-02T10:00:00\" total=\"58.00\" subTotal=\"50.00\">" +
		"<cfdi:Emisor rfc=\"AAA010101AAA\" nombre=\"Caf\xe9 Pe\xf1a\"/>" +
		"<cfdi:Receptor rfc=\"SEM950215S98\"/></cfdi:Comprobante>"

	acq, err := Acquire([]byte(doc))
	require.NoError(t, err)
	got := byField(acq.Structured)
	assert.Equal(t, "58.00", got[entity.FieldTotal])
	assert.Equal(t, "Café Peña", got[entity.FieldEstablecimiento])
	assert.NotEmpty(t, acq.Warnings)
}

func TestParse_RejectsOtherRoots(t *testing.T) {
	_, err := Parse([]byte(`<?xml version="1.0"?><invoice total="1"/>`))
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindUnsupportedFormat))

	_, err = Parse([]byte(`<cfdi:Comprobante`))
	assert.Error(t, err)
}
