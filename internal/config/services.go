package config

import (
	"sort"

	"github.com/jumadata/warehouse-worker/internal/batch"
)

// LoadMode is the warehouse write disposition for a service's batches.
type LoadMode string

const (
	LoadTruncate LoadMode = "WRITE_TRUNCATE" // full replace, reference tables
	LoadAppend   LoadMode = "WRITE_APPEND"   // incremental, transactional tables
)

// Service describes one source API service and its target table. FilterField
// empty means the table has no date axis and is loaded in full every run.
type Service struct {
	Table       string
	APIName     string
	FilterField string
	LoadMode    LoadMode
	RangePolicy batch.Policy
	BatchDays   int // only for batch.PolicyFixedDays
}

// Incremental reports whether the service runs the historical-backfill plus
// recent-refresh phases instead of a single full load.
func (s Service) Incremental() bool {
	return s.FilterField != ""
}

// Services maps target table name to its service definition. Table names are
// the unique keys used everywhere else (scheduler status, trigger map, run
// history).
var Services = map[string]Service{
	// Reference tables (full load, truncate)
	"CAD_LOJAS":                      {APIName: "cad_lojas", LoadMode: LoadTruncate},
	"CAD_PESSOAS":                    {APIName: "cad_pessoas", LoadMode: LoadTruncate},
	"CAD_PRODUTOS":                   {APIName: "cad_produtos", LoadMode: LoadTruncate},
	"PRODUTOS_SALDO_ESTOQUE_EMPRESA": {APIName: "produtos_saldo_estoque_empresa", LoadMode: LoadTruncate},

	// Transactional tables (historical backfill + recent refresh, append)
	"DOCUMENTOS_FISCAIS_ENTRADA":            {APIName: "documentos_fiscais_entrada", FilterField: "dtmovimento", LoadMode: LoadAppend, RangePolicy: batch.PolicyMonthly},
	"DOCUMENTOS_FISCAIS_SAIDA":              {APIName: "documentos_fiscais_saida", FilterField: "dtmovimento", LoadMode: LoadAppend, RangePolicy: batch.PolicyMonthly},
	"ITENS_DOCUMENTOS_FISCAIS_ENTRADA":      {APIName: "itens_documentos_fiscais_entrada", FilterField: "dtmovimento", LoadMode: LoadAppend, RangePolicy: batch.PolicyMonthly},
	"ITENS_DOCUMENTOS_FISCAIS_SAIDA":        {APIName: "itens_documentos_fiscais_saida", FilterField: "dtmovimento", LoadMode: LoadAppend, RangePolicy: batch.PolicyFixedDays, BatchDays: 10},
	"RECEBIMENTOS_DOCUMENTOS_FISCAIS_SAIDA": {APIName: "recebimentos_documentos_fiscais_saida", FilterField: "dtmovimento", LoadMode: LoadAppend, RangePolicy: batch.PolicyMonthly},
	"PAGAMENTOS_DOCUMENTOS_FISCAIS_ENTRADA": {APIName: "pagamentos_documentos_fiscais_entrada", FilterField: "dtmovimento", LoadMode: LoadAppend, RangePolicy: batch.PolicyMonthly},
}

// ServiceFor returns the service definition for a table, filling in the
// Table field from the map key.
func ServiceFor(table string) (Service, bool) {
	svc, ok := Services[table]
	if !ok {
		return Service{}, false
	}
	svc.Table = table
	return svc, true
}

// AllServices returns every configured service in deterministic (sorted
// by table name) order.
func AllServices() []Service {
	tables := make([]string, 0, len(Services))
	for name := range Services {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	services := make([]Service, 0, len(tables))
	for _, name := range tables {
		svc := Services[name]
		svc.Table = name
		services = append(services, svc)
	}
	return services
}

// TriggerMap links a raw table to the gold-layer view it must refresh once
// the table's load succeeds.
var TriggerMap = map[string]string{
	"ITENS_DOCUMENTOS_FISCAIS_SAIDA":   "VW_ITENS_SAIDA",
	"DOCUMENTOS_FISCAIS_SAIDA":         "VW_NF_SAIDAS",
	"ITENS_DOCUMENTOS_FISCAIS_ENTRADA": "VW_ITENS_ENTRADA",
}

// GoldTable describes the physical layout of a materialized gold table.
// ClusterFields order matters: it is the clustering key order.
type GoldTable struct {
	PartitionField string
	ClusterFields  []string
}

// GoldTables maps a gold view name to its materialization layout. The
// materialized table name is derived by the VW_ -> T_ convention.
var GoldTables = map[string]GoldTable{
	"VW_ITENS_SAIDA": {
		PartitionField: "DTMOVIMENTO",
		ClusterFields:  []string{"EMPRESA", "descrcomproduto", "descrsecao"},
	},
	"VW_NF_SAIDAS": {
		PartitionField: "DTMOVIMENTO",
		ClusterFields:  []string{"EMPRESA"},
	},
	"VW_ITENS_ENTRADA": {
		PartitionField: "DTMOVIMENTO",
		ClusterFields:  []string{"EMPRESA", "descrcomproduto", "descrsecao"},
	},
}

// DateColumns are the source fields normalized to `YYYY-MM-DD HH:MM:SS`
// during loading. Matching is done on the lower-cased column name.
var DateColumns = []string{
	"dtalteracao", "dtnascimento", "dtcadastro", "dtemissao", "dtmovimento",
	"dtrecebimento", "dtpagamento", "dtvencimento", "dtiniciotabela", "dtfimtabela",
}
