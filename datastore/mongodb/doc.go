/*
Package mongodb implements datastore.Driver on the official MongoDB Go driver.

Compiled queries are passed to the server as-is: filters, sort documents, skip, limit and
projections map one to one onto find options. Index declarations become IndexModels named after
their key spec ("name_1_age_-1") unless a name option is given.

Usage:

	cfg := mongodb.DefaultConfig()
	cfg.URI = os.Getenv("MONGODB_URI")
	driver, err := mongodb.Connect(ctx, cfg, mongodb.WithLogr(logger))
	if err != nil {
		return err
	}
	defer driver.Close(ctx)

	session, err := docmapper.NewSession(driver, reg)
*/
package mongodb
