package export

import "context"

// CategoryFailure records one object category that failed to enumerate for one
// target. The category contributes zero objects and the run continues.
type CategoryFailure struct {
	Database string   `json:"database,omitempty"`
	Category Category `json:"category"`
	Error    string   `json:"error"`
}

type collector struct {
	objects  []Object
	failures []CategoryFailure
}

func (c *collector) category(database string, cat Category, fetch func() ([]Object, error)) {
	objs, err := fetch()
	if err != nil {
		c.failures = append(c.failures, CategoryFailure{Database: database, Category: cat, Error: err.Error()})
		return
	}
	c.objects = append(c.objects, objs...)
}

// CollectDatabase enumerates the enabled categories of one database in a fixed
// order and returns a flat tagged list. A failure retrieving one category is
// recorded and that category is skipped; other categories still contribute.
func CollectDatabase(ctx context.Context, src Source, database string, flags DatabaseFlags) ([]Object, []CategoryFailure) {
	c := &collector{}
	if flags.Tables {
		c.category(database, CategoryTables, func() ([]Object, error) { return src.Tables(ctx, database) })
	}
	if flags.Views {
		c.category(database, CategoryViews, func() ([]Object, error) { return src.Views(ctx, database) })
	}
	if flags.Procedures {
		c.category(database, CategoryProcedures, func() ([]Object, error) { return src.Procedures(ctx, database) })
	}
	if flags.Functions {
		c.category(database, CategoryFunctions, func() ([]Object, error) { return src.Functions(ctx, database) })
	}
	return c.objects, c.failures
}

// CollectServer enumerates the enabled server-level categories. The mail
// category contributes the mail root object plus its accounts and profiles;
// the jobs category contributes operators, jobs and alerts.
func CollectServer(ctx context.Context, src Source, flags ServerFlags) ([]Object, []CategoryFailure) {
	c := &collector{}
	if flags.Roles {
		c.category("", CategoryRoles, func() ([]Object, error) { return src.ServerRoles(ctx) })
	}
	if flags.Logins {
		c.category("", CategoryLogins, func() ([]Object, error) { return src.Logins(ctx) })
	}
	if flags.LinkedServers {
		c.category("", CategoryLinkedServers, func() ([]Object, error) { return src.LinkedServers(ctx) })
	}
	if flags.Triggers {
		c.category("", CategoryTriggers, func() ([]Object, error) { return src.ServerTriggers(ctx) })
	}
	if flags.Mail {
		c.category("", CategoryMail, func() ([]Object, error) { return src.MailObjects(ctx) })
	}
	if flags.Jobs {
		c.category("", CategoryJobs, func() ([]Object, error) { return src.JobObjects(ctx) })
	}
	return c.objects, c.failures
}
