/*
Package errors provides semantic error types for docmapper.

The package defines the mapping layer's failure conditions with specific types that can be
checked using the standard errors.Is() function or the provided helper functions.

Common Errors:

	var (
	    ErrKeyNotFound      = errors.New("key not found")
	    ErrKeyConflict      = errors.New("key conflict")
	    ErrDocumentNotFound = errors.New("document not found")
	    ErrDocumentNotValid = errors.New("document not valid")
	    ErrTypeMismatch     = errors.New("type mismatch")
	)

Usage:

	post, err := session.FindByID(ctx, postType, id)
	if err != nil {
	    if errors.IsDocumentNotFound(err) {
	        return nil, fmt.Errorf("post %s does not exist", id)
	    }
	    return nil, err
	}

	// Create typed errors
	err := errors.NewKeyNotFoundError("Post", "title")
	err := errors.NewDocumentNotValidError("Post", []string{"Title can't be blank"})

All errors propagate to the immediate caller. Nothing in docmapper retries or rolls back.
*/
package errors
