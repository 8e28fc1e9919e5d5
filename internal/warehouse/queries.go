package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/jumadata/warehouse-worker/internal/config"
)

// deleteRangeQuery builds the idempotency-guard DML: removes every row whose
// (lower-cased) filter field falls inside the inclusive date range.
func deleteRangeQuery(projectID, dataset, table, filterField string, start, end time.Time) string {
	return fmt.Sprintf(
		"DELETE FROM `%s.%s.%s` WHERE DATE(LOWER(%s)) BETWEEN DATE('%s') AND DATE('%s')",
		projectID, dataset, table,
		strings.ToLower(filterField),
		start.Format("2006-01-02"), end.Format("2006-01-02"),
	)
}

func dropTableQuery(projectID, dataset, table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS `%s.%s.%s`", projectID, dataset, table)
}

// createTableQuery rebuilds a gold table as a partitioned, clustered physical
// copy of its view. Cluster field order is significant.
func createTableQuery(projectID, dataset, table, view string, spec config.GoldTable) string {
	return fmt.Sprintf(
		"CREATE TABLE `%s.%s.%s` PARTITION BY %s CLUSTER BY %s AS SELECT * FROM `%s.%s.%s`",
		projectID, dataset, table,
		spec.PartitionField,
		strings.Join(spec.ClusterFields, ", "),
		projectID, dataset, view,
	)
}

// MaterializedTableName derives the physical table name from its view name
// (VW_ITENS_SAIDA -> T_ITENS_SAIDA).
func MaterializedTableName(view string) string {
	return strings.Replace(view, "VW_", "T_", 1)
}
